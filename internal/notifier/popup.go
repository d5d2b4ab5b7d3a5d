package notifier

import (
	"context"

	"maunium.net/go/mautrix/event"

	"mxnotify/internal/platform"
	"mxnotify/internal/session"
	"mxnotify/pkg/logx"
)

// displayPopup renders and shows one popup for ev, tracking the handle so a
// later read receipt can clear it.
func (n *Notifier) displayPopup(ctx context.Context, ev *session.Event, room session.Room) {
	if n.plat == nil || !n.plat.SupportsNotifications() || !n.plat.MaySendNotifications() {
		return
	}
	// No popups while the user is already looking at the client.
	if n.plat.HasFocus() {
		return
	}

	msg := textForEvent(ev)
	if msg == "" {
		return
	}

	roomName := room.Name()
	sender := senderDisplayName(ev)

	var title, body string
	switch {
	case ev.Sender == "" || sender == roomName:
		// Direct chats and senderless events label by room alone.
		title = roomName
		body = msg
		if b := ev.Body(); b != "" {
			body = b
		}
	case ev.Type.Type == event.StateMember.Type:
		// Membership text already names the actor.
		title = roomName
		body = msg
	default:
		title = sender + " (" + roomName + ")"
		body = msg
		if b := ev.Body(); b != "" {
			body = b
		}
	}

	if !n.IsBodyEnabled() {
		body = ""
	}

	icon := ""
	if n.client != nil && ev.Sender != "" {
		icon = n.client.AvatarURLForMember(room, ev.Sender)
	}

	handle, err := n.plat.DisplayNotification(ctx, platform.Notification{
		Title:   title,
		Body:    body,
		IconURL: icon,
		RoomID:  ev.RoomID,
	})
	if err != nil {
		n.log.Warn("display notification failed", logx.Err(err), logx.String("event", ev.ID.String()))
		return
	}
	if handle != "" {
		n.index.append(ev.RoomID, handle)
	}
	n.publish(EventDisplayed, DisplayedEvent{RoomID: ev.RoomID, EventID: ev.ID, Handle: string(handle)})
}

func senderDisplayName(ev *session.Event) string {
	if ev.SenderName != "" {
		return ev.SenderName
	}
	return string(ev.Sender)
}

// textForEvent produces the one-line summary used for popups. Unsummarisable
// event types yield "" and no popup.
func textForEvent(ev *session.Event) string {
	switch ev.Type.Type {
	case event.StateMember.Type:
		name := senderDisplayName(ev)
		switch ev.Membership() {
		case event.MembershipJoin:
			return name + " joined the room"
		case event.MembershipLeave:
			return name + " left the room"
		case event.MembershipInvite:
			return name + " was invited"
		case event.MembershipBan:
			return name + " was banned"
		default:
			return name + " changed their membership"
		}
	case event.EventMessage.Type:
		return ev.Body()
	default:
		return ""
	}
}
