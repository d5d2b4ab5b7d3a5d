// Package session defines the boundary between the notification engine and
// the Matrix session that feeds it. The engine only ever reads through these
// interfaces; it never owns or mutates session state.
package session

import (
	"maunium.net/go/mautrix/id"
)

// SyncState is the connectivity/catch-up status of the underlying session.
type SyncState string

const (
	SyncSyncing SyncState = "SYNCING"
	SyncStopped SyncState = "STOPPED"
	SyncError   SyncState = "ERROR"
)

// PushActions is the decision object from the push-rule engine: whether an
// event should notify and which tweaks apply.
type PushActions struct {
	Notify bool   `json:"notify"`
	Tweaks Tweaks `json:"tweaks"`
}

type Tweaks struct {
	Sound     bool `json:"sound"`
	Highlight bool `json:"highlight,omitempty"`
}

// Room is a read-only view of a joined room.
type Room interface {
	ID() id.RoomID
	Name() string
	CanonicalAlias() id.RoomAlias
	AltAliases() []id.RoomAlias

	// UnreadNotificationCount is the session's authoritative unread count
	// for the room, as updated by receipt processing.
	UnreadNotificationCount() int

	// AccountData returns the content of the given per-room account-data
	// record, or nil if none is set.
	AccountData(eventType string) map[string]any
}

// Listener observes the four inbound signal streams of a session.
// Implementations are registered and unregistered symmetrically via
// Client.AddListener / Client.RemoveListener.
type Listener interface {
	// OnEvent delivers a new or replayed room event.
	OnEvent(ev *Event)
	// OnEventDecrypted reports that decryption of a previously-pending
	// event finished (successfully or not).
	OnEventDecrypted(ev *Event)
	// OnRoomReceipt reports that a receipt was processed for a room.
	OnRoomReceipt(ev *Event, room Room)
	// OnSyncStateChange reports a sync-state transition.
	OnSyncStateChange(state SyncState)
}

// Client is the subset of a Matrix session the engine depends on.
type Client interface {
	UserID() id.UserID
	IsGuest() bool

	Room(roomID id.RoomID) Room

	// PushActionsForEvent evaluates push rules for the event.
	// A nil result means no rule matched.
	PushActionsForEvent(ev *Event) *PushActions

	// AvatarURLForMember resolves a displayable avatar URL for the sender,
	// or "" if none is available.
	AvatarURLForMember(room Room, userID id.UserID) string

	AddListener(l Listener)
	RemoveListener(l Listener)
}
