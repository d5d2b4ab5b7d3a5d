package notifier

import (
	"maunium.net/go/mautrix/id"
)

const (
	// MaxPendingDecryption bounds the decryption wait queue. Events older
	// than the newest 20 pending ones silently forfeit their chance to
	// notify rather than backing up behind a network stall.
	MaxPendingDecryption = 20

	// RoomSoundAccountDataType is the per-room account-data record carrying
	// a custom notification sound URL.
	RoomSoundAccountDataType = "uk.half-shot.notification.sound"
)

// Bus event types published by the engine.
const (
	EventEnabled    = "notifier.enabled"
	EventDisplayed  = "notification.displayed"
	EventCleared    = "notification.cleared"
	EventSuppressed = "notification.suppressed"
	EventSound      = "notification.sound"
)

// EnabledEvent reports an enablement change (or a prompt-visibility change,
// which consumers treat as a cue to re-check enablement).
type EnabledEvent struct {
	Value bool `json:"value"`
}

type DisplayedEvent struct {
	RoomID  id.RoomID  `json:"room_id"`
	EventID id.EventID `json:"event_id"`
	Handle  string     `json:"handle"`
}

type ClearedEvent struct {
	RoomID id.RoomID `json:"room_id"`
	Count  int       `json:"count"`
}

type SuppressedEvent struct {
	RoomID  id.RoomID  `json:"room_id"`
	EventID id.EventID `json:"event_id"`
	Reason  string     `json:"reason"`
}

type SoundEvent struct {
	RoomID id.RoomID `json:"room_id"`
	URL    string    `json:"url"`
}

// Config tunes the engine. The zero value gets sensible defaults on Apply.
type Config struct {
	// SignalBuffer is the inbound signal channel capacity.
	SignalBuffer int
	// SoundRatePerSec caps audible alerts per second.
	SoundRatePerSec int
	// DefaultSoundURL plays when a room carries no custom sound record.
	DefaultSoundURL string
	// QuietHours suppress all dispatch inside the listed windows.
	QuietHours []QuietWindow
}
