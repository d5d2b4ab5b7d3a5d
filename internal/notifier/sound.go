package notifier

import (
	"context"

	"mxnotify/internal/session"
	"mxnotify/pkg/logx"
)

// playSound plays the audible alert for ev, rate limited so notification
// storms do not stack sounds.
func (n *Notifier) playSound(ctx context.Context, ev *session.Event, room session.Room) {
	n.mu.Lock()
	limiter := n.limiter
	n.mu.Unlock()
	if limiter != nil && !limiter.Allow() {
		n.log.Debug("sound rate limited", logx.String("room", ev.RoomID.String()))
		return
	}

	url := n.soundForRoom(room)

	if n.plat != nil {
		if err := n.plat.LoudNotification(ctx, ev.RoomID); err != nil {
			n.log.Warn("loud notification failed", logx.Err(err))
		}
		if url != "" {
			if err := n.plat.PlaySound(ctx, url); err != nil {
				n.log.Warn("play sound failed", logx.Err(err), logx.String("url", url))
			}
		}
	}

	n.publish(EventSound, SoundEvent{RoomID: ev.RoomID, URL: url})
}

// soundForRoom resolves the per-room custom sound, falling back to the
// configured default. The session layer caches account data and the platform
// caches prepared audio, so there is nothing to memoise here.
func (n *Notifier) soundForRoom(room session.Room) string {
	def := n.configSnapshot().DefaultSoundURL
	if room == nil {
		return def
	}
	content := room.AccountData(RoomSoundAccountDataType)
	if content == nil {
		return def
	}
	url, ok := content["url"].(string)
	if !ok || url == "" {
		n.log.Warn("room sound record has no url", logx.String("room", room.ID().String()))
		return def
	}
	return url
}
