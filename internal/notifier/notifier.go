package notifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"mxnotify/internal/eventbus"
	"mxnotify/internal/platform"
	"mxnotify/internal/runtime/supervisor"
	"mxnotify/internal/session"
	"mxnotify/internal/settings"
	"mxnotify/pkg/logx"
)

type signalKind int

const (
	sigEvent signalKind = iota
	sigDecrypted
	sigReceipt
	sigSyncState
	sigPermission
)

type signal struct {
	kind  signalKind
	ev    *session.Event
	room  session.Room
	state session.SyncState

	// permission-result continuation
	perm    platform.PermissionResult
	permErr error
	after   func()
}

// Notifier is the notification decision-and-dispatch engine. One instance
// serves one active session; construct it at session start and Stop it at
// session end.
//
// It is safe for concurrent use; all mutable engine state is owned by the
// single run loop.
type Notifier struct {
	mu sync.Mutex

	log      logx.Logger
	client   session.Client
	plat     platform.Capability
	settings settings.Facade
	flags    settings.DeviceFlags
	bus      eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	signals   chan signal
	sup       *supervisor.Supervisor
	stopDone  chan struct{} // non-nil while stopping

	dropped atomic.Uint64

	// Run-loop-owned state. Reset on Stop, after the loop has exited.
	syncing bool
	pending *pendingQueue
	index   *notificationIndex

	// enablement-flow state, read by State() from any goroutine
	emu            sync.Mutex
	requesting     bool
	lastPermission platform.PermissionResult
}

func New(cfg Config, client session.Client, plat platform.Capability, st settings.Facade, flags settings.DeviceFlags, bus eventbus.Bus, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{
		log:      log,
		client:   client,
		plat:     plat,
		settings: st,
		flags:    flags,
		bus:      bus,
		pending:  newPendingQueue(MaxPendingDecryption),
		index:    newNotificationIndex(),
	}
	n.applyLocked(cfg)
	return n
}

// Apply re-applies tunables (quiet hours, sound rate, buffer size for the
// next Start). Safe while running.
func (n *Notifier) Apply(cfg Config) {
	n.mu.Lock()
	n.applyLocked(cfg)
	n.mu.Unlock()
}

func (n *Notifier) applyLocked(cfg Config) {
	if cfg.SignalBuffer <= 0 {
		cfg.SignalBuffer = 256
	}
	if cfg.SoundRatePerSec <= 0 {
		cfg.SoundRatePerSec = 1
	}
	n.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't go silent.
	n.limiter = rate.NewLimiter(rate.Limit(cfg.SoundRatePerSec), cfg.SoundRatePerSec)
}

func (n *Notifier) configSnapshot() Config {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg
}

// Start subscribes to the session and launches the run loop. Idempotent.
func (n *Notifier) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	n.mu.Lock()
	if n.stopDone != nil {
		done := n.stopDone
		n.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		n.mu.Lock()
	}
	if n.signals != nil {
		n.mu.Unlock()
		return
	}
	n.signals = make(chan signal, n.cfg.SignalBuffer)
	n.accepting = true
	n.syncing = false
	n.sup = supervisor.New(ctx,
		supervisor.WithLogger(n.log.With(logx.String("comp", "notifier"))),
		// Engine failures must not take down the host; treat as best-effort.
		supervisor.WithCancelOnError(false),
	)
	sup := n.sup
	q := n.signals
	n.mu.Unlock()

	if n.client != nil {
		n.client.AddListener(n)
	}
	sup.GoRestart("run", func(c context.Context) error {
		return n.runLoop(c, q)
	})
}

// Stop unsubscribes, drains queued signals best-effort until ctx deadline,
// and clears all per-session state (wait queue, tracked handles).
func (n *Notifier) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	n.mu.Lock()
	q := n.signals
	sup := n.sup
	if q == nil {
		n.mu.Unlock()
		return
	}
	if n.stopDone != nil {
		done := n.stopDone
		n.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	n.stopDone = done
	n.accepting = false
	n.mu.Unlock()

	if n.client != nil {
		n.client.RemoveListener(n)
	}

	// Shutdown happens asynchronously so callers can time out without
	// leaking state.
	go func() {
		defer close(done)
		// Wait for in-flight posts, then close the queue so the loop drains.
		n.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		n.mu.Lock()
		n.signals = nil
		n.sup = nil
		n.stopDone = nil
		n.syncing = false
		n.pending.clear()
		n.index.clear()
		n.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// DroppedSignals reports how many inbound signals were discarded because the
// engine loop fell behind. Operational signal only.
func (n *Notifier) DroppedSignals() uint64 { return n.dropped.Load() }

// ---- session.Listener ----

func (n *Notifier) OnEvent(ev *session.Event) {
	n.post(signal{kind: sigEvent, ev: ev})
}

func (n *Notifier) OnEventDecrypted(ev *session.Event) {
	n.post(signal{kind: sigDecrypted, ev: ev})
}

func (n *Notifier) OnRoomReceipt(ev *session.Event, room session.Room) {
	n.post(signal{kind: sigReceipt, ev: ev, room: room})
}

func (n *Notifier) OnSyncStateChange(state session.SyncState) {
	n.post(signal{kind: sigSyncState, state: state})
}

// post forwards a signal to the run loop without ever blocking the caller.
func (n *Notifier) post(sig signal) bool {
	n.mu.Lock()
	if !n.accepting || n.signals == nil {
		n.mu.Unlock()
		return false
	}
	q := n.signals
	n.sendWG.Add(1)
	n.mu.Unlock()
	defer n.sendWG.Done()

	select {
	case q <- sig:
		return true
	default:
		if d := n.dropped.Add(1); d == 1 || d%100 == 0 {
			n.log.Warn("signal dropped (engine loop behind)", logx.Uint64("total", d))
		}
		return false
	}
}

// ---- run loop ----

func (n *Notifier) runLoop(ctx context.Context, q <-chan signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-q:
			if !ok {
				return nil
			}
			n.process(ctx, sig)
		}
	}
}

func (n *Notifier) process(ctx context.Context, sig signal) {
	switch sig.kind {
	case sigSyncState:
		n.handleSyncState(sig.state)
	case sigEvent:
		n.handleEvent(ctx, sig.ev)
	case sigDecrypted:
		n.handleDecrypted(ctx, sig.ev)
	case sigReceipt:
		n.handleReceipt(ctx, sig.room)
	case sigPermission:
		n.completePermission(sig.perm, sig.permErr, sig.after)
	}
}

func (n *Notifier) handleSyncState(state session.SyncState) {
	switch state {
	case session.SyncSyncing:
		n.syncing = true
	case session.SyncStopped, session.SyncError:
		n.syncing = false
	}
}

func (n *Notifier) handleEvent(ctx context.Context, ev *session.Event) {
	if ev == nil {
		return
	}
	// Don't alert for anything delivered outside active sync: initial-sync
	// and reconnection backfill replay history.
	if !n.syncing {
		return
	}
	if ev.Sender != "" && n.client != nil && ev.Sender == n.client.UserID() {
		return
	}

	switch ev.Decryption {
	case session.DecryptionPending:
		// Wait until it's decrypted before deciding whether to notify.
		for _, old := range n.pending.enqueue(ev.ID) {
			n.log.Debug("pending decryption evicted", logx.String("event", old.String()))
		}
		return
	case session.DecryptionFailed:
		// Permanently excluded; no retry on later key arrival.
		return
	}

	n.evaluate(ctx, ev)
}

func (n *Notifier) handleDecrypted(ctx context.Context, ev *session.Event) {
	if ev == nil {
		return
	}
	// Decryption finished but failed: the event stays excluded, and its id
	// stays out of the queue.
	if ev.Decryption == session.DecryptionFailed {
		return
	}
	// Not queued (never seen, or evicted): too stale to notify for.
	if !n.pending.resolve(ev.ID) {
		return
	}
	n.evaluate(ctx, ev)
}

func (n *Notifier) handleReceipt(ctx context.Context, room session.Room) {
	if room == nil || n.plat == nil {
		return
	}
	// We can't tell from a receipt which individual alerts are now read, so
	// clear everything once the room reports no unread notifications at all.
	if room.UnreadNotificationCount() != 0 {
		return
	}
	handles := n.index.take(room.ID())
	if len(handles) == 0 {
		return
	}
	for _, h := range handles {
		if err := n.plat.ClearNotification(ctx, h); err != nil {
			n.log.Warn("clear notification failed", logx.Err(err), logx.String("room", room.ID().String()))
		}
	}
	n.publish(EventCleared, ClearedEvent{RoomID: room.ID(), Count: len(handles)})
}

func (n *Notifier) evaluate(ctx context.Context, ev *session.Event) {
	if n.client == nil {
		return
	}
	room := n.client.Room(ev.RoomID)
	if room == nil {
		n.log.Debug("event for unknown room", logx.String("room", ev.RoomID.String()))
		return
	}
	actions := n.client.PushActionsForEvent(ev)
	if actions == nil || !actions.Notify {
		return
	}

	wantPopup := n.IsEnabled()
	wantSound := actions.Tweaks.Sound && n.IsAudioEnabled()
	if !wantPopup && !wantSound {
		return
	}

	// Quiet hours suppress only what would otherwise have dispatched.
	if w := n.quietWindowAt(time.Now()); w != nil {
		n.log.Debug("dispatch suppressed by quiet hours",
			logx.String("window", w.Spec), logx.String("event", ev.ID.String()))
		n.publish(EventSuppressed, SuppressedEvent{RoomID: ev.RoomID, EventID: ev.ID, Reason: "quiet-hours"})
		return
	}

	if wantPopup {
		n.displayPopup(ctx, ev, room)
	}
	if wantSound {
		n.playSound(ctx, ev, room)
	}
}

func (n *Notifier) publish(eventType string, data any) {
	if n.bus == nil {
		return
	}
	n.bus.Publish(eventbus.Event{Type: eventType, Time: time.Now(), Data: data})
}
