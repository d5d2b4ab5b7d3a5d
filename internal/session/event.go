package session

import (
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// DecryptionStatus is the lifecycle tag of an event under end-to-end
// encryption. Unencrypted events are Plain for their whole life.
type DecryptionStatus string

const (
	DecryptionPlain     DecryptionStatus = "plain"
	DecryptionPending   DecryptionStatus = "pending"
	DecryptionFailed    DecryptionStatus = "failed"
	DecryptionDecrypted DecryptionStatus = "decrypted"
)

// Event is a read-only snapshot of a room event as delivered by the session.
// The engine holds identifiers past an evaluation, never Event pointers.
type Event struct {
	ID         id.EventID       `json:"id"`
	RoomID     id.RoomID        `json:"room_id"`
	Sender     id.UserID        `json:"sender"`
	SenderName string           `json:"sender_name,omitempty"`
	Type       event.Type       `json:"type"`
	Content    map[string]any   `json:"content,omitempty"`
	Decryption DecryptionStatus `json:"decryption,omitempty"`
}

// Body returns the raw textual body of the event, or "".
func (ev *Event) Body() string {
	if ev == nil || ev.Content == nil {
		return ""
	}
	s, _ := ev.Content["body"].(string)
	return s
}

// Membership returns the membership value of a member event, or "".
func (ev *Event) Membership() event.Membership {
	if ev == nil || ev.Content == nil {
		return ""
	}
	s, _ := ev.Content["membership"].(string)
	return event.Membership(s)
}
