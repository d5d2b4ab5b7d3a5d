package platform

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/id"

	"mxnotify/pkg/logx"
)

// LogBackend is a headless Capability: alerts and sounds become structured
// log lines. It is the default backend for mxnotifyd and doubles as a
// deterministic target for integration tests. Permission is granted up front
// (there is no one to prompt), and the surface never has focus.
type LogBackend struct {
	log logx.Logger

	mu      sync.Mutex
	live    map[Handle]Notification
	sounds  map[string]int // url -> times played, stands in for reusable audio elements
	dialogs int
}

func NewLogBackend(log logx.Logger) *LogBackend {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogBackend{
		log:    log.With(logx.String("comp", "platform.log")),
		live:   map[Handle]Notification{},
		sounds: map[string]int{},
	}
}

func (b *LogBackend) SupportsNotifications() bool { return true }
func (b *LogBackend) MaySendNotifications() bool  { return true }
func (b *LogBackend) HasFocus() bool              { return false }

func (b *LogBackend) RequestPermission(ctx context.Context) (PermissionResult, error) {
	return PermissionGranted, nil
}

func (b *LogBackend) DisplayNotification(ctx context.Context, n Notification) (Handle, error) {
	h := Handle(uuid.NewString())
	b.mu.Lock()
	b.live[h] = n
	b.mu.Unlock()
	b.log.Info("notification",
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.String("room", n.RoomID.String()),
		logx.String("handle", string(h)))
	return h, nil
}

func (b *LogBackend) ClearNotification(ctx context.Context, h Handle) error {
	b.mu.Lock()
	n, ok := b.live[h]
	delete(b.live, h)
	b.mu.Unlock()
	if ok {
		b.log.Info("notification cleared",
			logx.String("title", n.Title),
			logx.String("handle", string(h)))
	}
	return nil
}

func (b *LogBackend) LoudNotification(ctx context.Context, roomID id.RoomID) error {
	b.log.Debug("loud notification", logx.String("room", roomID.String()))
	return nil
}

func (b *LogBackend) PlaySound(ctx context.Context, url string) error {
	b.mu.Lock()
	b.sounds[url]++
	n := b.sounds[url]
	b.mu.Unlock()
	b.log.Info("sound", logx.String("url", url), logx.Int("plays", n))
	return nil
}

func (b *LogBackend) ShowDialog(title, text string) {
	b.mu.Lock()
	b.dialogs++
	b.mu.Unlock()
	b.log.Warn("dialog", logx.String("title", title), logx.String("text", text))
}

// LiveCount reports how many alerts are currently showing.
func (b *LogBackend) LiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}
