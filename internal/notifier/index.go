package notifier

import (
	"maunium.net/go/mautrix/id"

	"mxnotify/internal/platform"
)

// notificationIndex tracks live, clearable alert handles per room.
// A room is present only while it holds at least one handle. Only the
// engine run loop touches it.
type notificationIndex struct {
	byRoom map[id.RoomID][]platform.Handle
}

func newNotificationIndex() *notificationIndex {
	return &notificationIndex{byRoom: map[id.RoomID][]platform.Handle{}}
}

func (ix *notificationIndex) append(roomID id.RoomID, h platform.Handle) {
	if h == "" {
		return
	}
	ix.byRoom[roomID] = append(ix.byRoom[roomID], h)
}

// take removes and returns the room's handles (nil if none tracked).
func (ix *notificationIndex) take(roomID id.RoomID) []platform.Handle {
	hs, ok := ix.byRoom[roomID]
	if !ok {
		return nil
	}
	delete(ix.byRoom, roomID)
	return hs
}

func (ix *notificationIndex) count(roomID id.RoomID) int {
	return len(ix.byRoom[roomID])
}

func (ix *notificationIndex) rooms() int { return len(ix.byRoom) }

func (ix *notificationIndex) clear() {
	ix.byRoom = map[id.RoomID][]platform.Handle{}
}
