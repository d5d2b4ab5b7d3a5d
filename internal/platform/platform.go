// Package platform abstracts the notification and audio primitives of the
// host environment, so the engine contains no direct environment access and
// can be tested against fakes.
package platform

import (
	"context"

	"maunium.net/go/mautrix/id"
)

// PermissionResult is the outcome of a notification permission prompt.
type PermissionResult string

const (
	PermissionGranted   PermissionResult = "granted"
	PermissionDenied    PermissionResult = "denied"
	PermissionDismissed PermissionResult = "dismissed"
)

// Handle is an opaque token for a live, clearable alert. The empty handle
// means the backend cannot clear the alert later, and nothing is tracked.
type Handle string

// Notification is a fully-resolved visible alert.
type Notification struct {
	Title   string
	Body    string
	IconURL string
	RoomID  id.RoomID
}

// Capability is the set of host primitives the engine dispatches through.
// Every method must fail soft: an unavailable backend degrades to "no
// notification", never to an engine failure.
type Capability interface {
	// SupportsNotifications reports whether the backend can show alerts at all.
	SupportsNotifications() bool
	// MaySendNotifications reports whether permission is currently granted.
	MaySendNotifications() bool

	// RequestPermission shows the permission prompt and reports the outcome.
	// It may block until the user answers; callers run it off the engine loop.
	RequestPermission(ctx context.Context) (PermissionResult, error)

	// DisplayNotification shows a visible alert and returns its handle.
	// An empty handle means the alert cannot be cleared later.
	DisplayNotification(ctx context.Context, n Notification) (Handle, error)
	// ClearNotification dismisses a previously-displayed alert.
	ClearNotification(ctx context.Context, h Handle) error

	// LoudNotification requests host-level attention for the room
	// (taskbar flash, badge bounce) without showing a popup.
	LoudNotification(ctx context.Context, roomID id.RoomID) error
	// PlaySound plays the sound at url, reusing an already-prepared audio
	// element bound to that url if the backend keeps one.
	PlaySound(ctx context.Context, url string) error

	// HasFocus reports whether the client surface currently has user focus.
	HasFocus() bool

	// ShowDialog surfaces a user-facing message (permission refusals).
	ShowDialog(title, text string)
}
