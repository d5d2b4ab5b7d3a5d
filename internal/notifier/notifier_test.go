package notifier

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"mxnotify/internal/eventbus"
	"mxnotify/internal/platform"
	"mxnotify/internal/session"
	"mxnotify/internal/settings"
	"mxnotify/pkg/logx"
)

type fakeRoom struct {
	id          id.RoomID
	name        string
	unread      int
	accountData map[string]map[string]any
}

func (r *fakeRoom) ID() id.RoomID { return r.id }
func (r *fakeRoom) Name() string { return r.name }
func (r *fakeRoom) CanonicalAlias() id.RoomAlias { return "" }
func (r *fakeRoom) AltAliases() []id.RoomAlias { return nil }
func (r *fakeRoom) UnreadNotificationCount() int { return r.unread }
func (r *fakeRoom) AccountData(t string) map[string]any {
	if r.accountData == nil {
		return nil
	}
	return r.accountData[t]
}

type fakeClient struct {
	userID  id.UserID
	guest   bool
	rooms   map[id.RoomID]*fakeRoom
	actions map[id.EventID]*session.PushActions

	mu        sync.Mutex
	listeners []session.Listener
}

func (c *fakeClient) UserID() id.UserID { return c.userID }
func (c *fakeClient) IsGuest() bool { return c.guest }

func (c *fakeClient) Room(roomID id.RoomID) session.Room {
	r, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	return r
}

func (c *fakeClient) PushActionsForEvent(ev *session.Event) *session.PushActions {
	if a, ok := c.actions[ev.ID]; ok {
		return a
	}
	return &session.PushActions{Notify: true}
}

func (c *fakeClient) AvatarURLForMember(room session.Room, userID id.UserID) string {
	return "https://example.org/avatar/" + string(userID)
}

func (c *fakeClient) AddListener(l session.Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *fakeClient) RemoveListener(l session.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.listeners {
		if x == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

type fakePlatform struct {
	mu sync.Mutex

	supports bool
	maySend  bool
	focused  bool
	perm     platform.PermissionResult
	permErr  error

	nextHandle int
	displayed  []platform.Notification
	handles    []platform.Handle
	cleared    []platform.Handle
	sounds     []string
	loud       []id.RoomID
	dialogs    []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{supports: true, maySend: true, perm: platform.PermissionGranted}
}

func (p *fakePlatform) SupportsNotifications() bool { return p.supports }
func (p *fakePlatform) MaySendNotifications() bool { return p.maySend }

func (p *fakePlatform) RequestPermission(ctx context.Context) (platform.PermissionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.perm == platform.PermissionGranted {
		p.maySend = true
	}
	return p.perm, p.permErr
}

func (p *fakePlatform) DisplayNotification(ctx context.Context, n platform.Notification) (platform.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextHandle++
	h := platform.Handle(fmt.Sprintf("h%d", p.nextHandle))
	p.displayed = append(p.displayed, n)
	p.handles = append(p.handles, h)
	return h, nil
}

func (p *fakePlatform) ClearNotification(ctx context.Context, h platform.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, h)
	return nil
}

func (p *fakePlatform) LoudNotification(ctx context.Context, roomID id.RoomID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loud = append(p.loud, roomID)
	return nil
}

func (p *fakePlatform) PlaySound(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sounds = append(p.sounds, url)
	return nil
}

func (p *fakePlatform) HasFocus() bool { return p.focused }

func (p *fakePlatform) ShowDialog(title, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialogs = append(p.dialogs, title)
}

func (p *fakePlatform) displayedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.displayed)
}

const (
	testRoomID = id.RoomID("!room:example.org")
	testSelfID = id.UserID("@self:example.org")
)

type fixture struct {
	n      *Notifier
	client *fakeClient
	plat   *fakePlatform
	store  settings.Store
	bus    eventbus.Bus
	room   *fakeRoom
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	room := &fakeRoom{id: testRoomID, name: "Ops Room"}
	client := &fakeClient{
		userID:  testSelfID,
		rooms:   map[id.RoomID]*fakeRoom{testRoomID: room},
		actions: map[id.EventID]*session.PushActions{},
	}
	plat := newFakePlatform()
	store, err := settings.Open(settings.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	for _, key := range []string{settings.KeyNotificationsEnabled, settings.KeyNotificationBodyEnabled, settings.KeyAudioNotificationsEnabled} {
		if err := store.SetValue(key, "", settings.LevelAccount, true); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	bus := eventbus.New()
	n := New(Config{}, client, plat, store, store, bus, logx.Nop())
	n.syncing = true
	return &fixture{n: n, client: client, plat: plat, store: store, bus: bus, room: room}
}

func msgEvent(eid, sender, body string) *session.Event {
	return &session.Event{
		ID:     id.EventID(eid),
		RoomID: testRoomID,
		Sender: id.UserID(sender),
		Type:   event.EventMessage,
		Content: map[string]any{
			"msgtype": "m.text",
			"body":    body,
		},
		Decryption: session.DecryptionPlain,
	}
}

func TestEventOutsideSyncIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.n.handleSyncState(session.SyncStopped)
	f.n.handleEvent(ctx, msgEvent("$e1", "@alice:example.org", "hi"))
	if got := f.plat.displayedCount(); got != 0 {
		t.Fatalf("displayed %d notifications while stopped, want 0", got)
	}

	f.n.handleSyncState(session.SyncSyncing)
	f.n.handleEvent(ctx, msgEvent("$e2", "@alice:example.org", "hi again"))
	if got := f.plat.displayedCount(); got != 1 {
		t.Fatalf("displayed %d notifications while syncing, want 1", got)
	}

	// ERROR closes the gate again.
	f.n.handleSyncState(session.SyncError)
	f.n.handleEvent(ctx, msgEvent("$e3", "@alice:example.org", "dropped"))
	if got := f.plat.displayedCount(); got != 1 {
		t.Fatalf("displayed %d notifications after error, want 1", got)
	}
}

func TestOwnEventsIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.n.handleEvent(context.Background(), msgEvent("$e1", string(testSelfID), "me"))
	if got := f.plat.displayedCount(); got != 0 {
		t.Fatalf("displayed %d notifications for own event, want 0", got)
	}
}

func TestPushActionsGate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.client.actions["$quiet"] = &session.PushActions{Notify: false}
	f.n.handleEvent(ctx, msgEvent("$quiet", "@alice:example.org", "no alert"))
	if got := f.plat.displayedCount(); got != 0 {
		t.Fatalf("displayed %d notifications for notify=false, want 0", got)
	}
}

func TestPendingDecryption(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	ev := msgEvent("$enc", "@alice:example.org", "")
	ev.Decryption = session.DecryptionPending
	f.n.handleEvent(ctx, ev)
	if got := f.plat.displayedCount(); got != 0 {
		t.Fatalf("displayed %d notifications before decryption, want 0", got)
	}
	if f.n.pending.len() != 1 {
		t.Fatalf("pending len = %d, want 1", f.n.pending.len())
	}

	dec := msgEvent("$enc", "@alice:example.org", "secret")
	dec.Decryption = session.DecryptionDecrypted
	f.n.handleDecrypted(ctx, dec)
	if got := f.plat.displayedCount(); got != 1 {
		t.Fatalf("displayed %d notifications after decryption, want 1", got)
	}
	if f.n.pending.len() != 0 {
		t.Fatalf("pending len = %d after resolution, want 0", f.n.pending.len())
	}

	// Resolving again is a stale no-op.
	f.n.handleDecrypted(ctx, dec)
	if got := f.plat.displayedCount(); got != 1 {
		t.Fatalf("stale resolution displayed a duplicate, have %d", got)
	}
}

func TestPendingDecryptionDirectChat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	ev := msgEvent("$e1", "@other:example.org", "")
	ev.Decryption = session.DecryptionPending
	f.n.handleEvent(ctx, ev)

	dec := msgEvent("$e1", "@other:example.org", "good morning")
	dec.SenderName = "Ops Room" // 1:1 chat: sender display name is the room name
	dec.Decryption = session.DecryptionDecrypted
	f.client.actions[dec.ID] = &session.PushActions{Notify: true}
	f.n.handleDecrypted(ctx, dec)

	if got := f.plat.displayedCount(); got != 1 {
		t.Fatalf("displayed %d notifications, want 1", got)
	}
	n := f.plat.displayed[0]
	if n.Title != "Ops Room" {
		t.Errorf("title = %q, want room name", n.Title)
	}
	if n.Body != "good morning" {
		t.Errorf("body = %q, want event body", n.Body)
	}
	if len(f.plat.sounds) != 0 {
		t.Errorf("played %d sounds with sound tweak off", len(f.plat.sounds))
	}
}

func TestPendingEvictionDropsOldest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < MaxPendingDecryption+1; i++ {
		ev := msgEvent(fmt.Sprintf("$enc%d", i), "@alice:example.org", "")
		ev.Decryption = session.DecryptionPending
		f.n.handleEvent(ctx, ev)
	}
	if f.n.pending.len() != MaxPendingDecryption {
		t.Fatalf("pending len = %d, want %d", f.n.pending.len(), MaxPendingDecryption)
	}

	// The oldest entry was evicted; its late decryption is stale.
	dec := msgEvent("$enc0", "@alice:example.org", "late")
	dec.Decryption = session.DecryptionDecrypted
	f.n.handleDecrypted(ctx, dec)
	if got := f.plat.displayedCount(); got != 0 {
		t.Fatalf("evicted event still produced %d notifications", got)
	}

	// The newest entry survived and resolves normally.
	dec = msgEvent(fmt.Sprintf("$enc%d", MaxPendingDecryption), "@alice:example.org", "fresh")
	dec.Decryption = session.DecryptionDecrypted
	f.n.handleDecrypted(ctx, dec)
	if got := f.plat.displayedCount(); got != 1 {
		t.Fatalf("surviving event produced %d notifications, want 1", got)
	}
}

func TestFailedDecryptionExcluded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	ev := msgEvent("$bad", "@alice:example.org", "")
	ev.Decryption = session.DecryptionFailed
	f.n.handleEvent(ctx, ev)
	if f.n.pending.len() != 0 {
		t.Fatalf("failed event was queued")
	}

	// A pending event whose decryption later fails stays excluded and its
	// queue slot is consumed only on success.
	pend := msgEvent("$bad2", "@alice:example.org", "")
	pend.Decryption = session.DecryptionPending
	f.n.handleEvent(ctx, pend)
	fail := msgEvent("$bad2", "@alice:example.org", "")
	fail.Decryption = session.DecryptionFailed
	f.n.handleDecrypted(ctx, fail)
	if got := f.plat.displayedCount(); got != 0 {
		t.Fatalf("failed decryption produced %d notifications", got)
	}
}

func TestReceiptClearsAllOrNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.n.handleEvent(ctx, msgEvent("$e1", "@alice:example.org", "one"))
	f.n.handleEvent(ctx, msgEvent("$e2", "@alice:example.org", "two"))
	if got := f.n.index.count(testRoomID); got != 2 {
		t.Fatalf("tracking %d handles, want 2", got)
	}

	// Partial read: nothing is cleared.
	f.room.unread = 1
	f.n.handleReceipt(ctx, f.room)
	if len(f.plat.cleared) != 0 {
		t.Fatalf("cleared %d handles with unread > 0", len(f.plat.cleared))
	}

	// Fully read: everything goes.
	f.room.unread = 0
	f.n.handleReceipt(ctx, f.room)
	if len(f.plat.cleared) != 2 {
		t.Fatalf("cleared %d handles, want 2", len(f.plat.cleared))
	}
	if got := f.n.index.count(testRoomID); got != 0 {
		t.Fatalf("still tracking %d handles after clear", got)
	}

	// A second receipt for an empty room is a no-op.
	f.n.handleReceipt(ctx, f.room)
	if len(f.plat.cleared) != 2 {
		t.Fatalf("empty-room receipt cleared more handles")
	}
}

func TestPopupContent(t *testing.T) {
	t.Parallel()

	member := func(eid, sender, name string, m event.Membership) *session.Event {
		return &session.Event{
			ID:         id.EventID(eid),
			RoomID:     testRoomID,
			Sender:     id.UserID(sender),
			SenderName: name,
			Type:       event.StateMember,
			Content:    map[string]any{"membership": string(m)},
			Decryption: session.DecryptionPlain,
		}
	}

	tests := []struct {
		name      string
		ev        *session.Event
		bodyOff   bool
		wantTitle string
		wantBody  string
	}{
		{
			name: "named sender",
			ev: func() *session.Event {
				ev := msgEvent("$m1", "@alice:example.org", "hello there")
				ev.SenderName = "Alice"
				return ev
			}(),
			wantTitle: "Alice (Ops Room)",
			wantBody:  "hello there",
		},
		{
			name: "sender name matches room name",
			ev: func() *session.Event {
				ev := msgEvent("$m2", "@alice:example.org", "direct message")
				ev.SenderName = "Ops Room"
				return ev
			}(),
			wantTitle: "Ops Room",
			wantBody:  "direct message",
		},
		{
			name:      "member join",
			ev:        member("$m3", "@bob:example.org", "Bob", event.MembershipJoin),
			wantTitle: "Ops Room",
			wantBody:  "Bob joined the room",
		},
		{
			name:      "member ban",
			ev:        member("$m4", "@bob:example.org", "Bob", event.MembershipBan),
			wantTitle: "Ops Room",
			wantBody:  "Bob was banned",
		},
		{
			name: "body disabled",
			ev: func() *session.Event {
				ev := msgEvent("$m5", "@alice:example.org", "secret text")
				ev.SenderName = "Alice"
				return ev
			}(),
			bodyOff:   true,
			wantTitle: "Alice (Ops Room)",
			wantBody:  "",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tc.bodyOff {
				if err := f.store.SetValue(settings.KeyNotificationBodyEnabled, "", settings.LevelAccount, false); err != nil {
					t.Fatalf("set body flag: %v", err)
				}
			}
			f.n.handleEvent(context.Background(), tc.ev)
			if got := f.plat.displayedCount(); got != 1 {
				t.Fatalf("displayed %d notifications, want 1", got)
			}
			n := f.plat.displayed[0]
			if n.Title != tc.wantTitle {
				t.Errorf("title = %q, want %q", n.Title, tc.wantTitle)
			}
			if n.Body != tc.wantBody {
				t.Errorf("body = %q, want %q", n.Body, tc.wantBody)
			}
		})
	}
}

func TestNoPopupWhenFocused(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.plat.focused = true

	ev := msgEvent("$e1", "@alice:example.org", "hi")
	f.client.actions[ev.ID] = &session.PushActions{Notify: true, Tweaks: session.Tweaks{Sound: true}}
	f.n.handleEvent(context.Background(), ev)
	if got := f.plat.displayedCount(); got != 0 {
		t.Fatalf("displayed %d notifications while focused, want 0", got)
	}
	// Focus suppresses the popup only; the sound still plays.
	if len(f.plat.sounds) != 1 {
		t.Fatalf("played %d sounds while focused, want 1", len(f.plat.sounds))
	}
}

func TestRoomSoundSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.n.Apply(Config{DefaultSoundURL: "mxc://default/ping", SoundRatePerSec: 10})
	ctx := context.Background()

	ev := msgEvent("$s1", "@alice:example.org", "ding")
	f.client.actions[ev.ID] = &session.PushActions{Notify: true, Tweaks: session.Tweaks{Sound: true}}
	f.n.handleEvent(ctx, ev)
	if len(f.plat.sounds) != 1 || f.plat.sounds[0] != "mxc://default/ping" {
		t.Fatalf("sounds = %v, want default", f.plat.sounds)
	}

	f.room.accountData = map[string]map[string]any{
		RoomSoundAccountDataType: {"url": "mxc://room/horn"},
	}
	ev2 := msgEvent("$s2", "@alice:example.org", "ding")
	f.client.actions[ev2.ID] = &session.PushActions{Notify: true, Tweaks: session.Tweaks{Sound: true}}
	f.n.handleEvent(ctx, ev2)
	if got := f.plat.sounds[len(f.plat.sounds)-1]; got != "mxc://room/horn" {
		t.Fatalf("room sound = %q, want mxc://room/horn", got)
	}

	// A record without a url falls back to the default.
	f.room.accountData[RoomSoundAccountDataType] = map[string]any{"name": "horn"}
	ev3 := msgEvent("$s3", "@alice:example.org", "ding")
	f.client.actions[ev3.ID] = &session.PushActions{Notify: true, Tweaks: session.Tweaks{Sound: true}}
	f.n.handleEvent(ctx, ev3)
	if got := f.plat.sounds[len(f.plat.sounds)-1]; got != "mxc://default/ping" {
		t.Fatalf("fallback sound = %q, want default", got)
	}
}

func TestSoundRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.n.Apply(Config{SoundRatePerSec: 1, DefaultSoundURL: "mxc://default/ping"})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := msgEvent(fmt.Sprintf("$burst%d", i), "@alice:example.org", "ding")
		f.client.actions[ev.ID] = &session.PushActions{Notify: true, Tweaks: session.Tweaks{Sound: true}}
		f.n.handleEvent(ctx, ev)
	}
	// One token in the bucket, so one sound survives the burst. The popups
	// themselves are never rate limited.
	if len(f.plat.sounds) != 1 {
		t.Fatalf("played %d sounds in a burst, want 1", len(f.plat.sounds))
	}
	if got := f.plat.displayedCount(); got != 5 {
		t.Fatalf("displayed %d popups, want 5", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f.n.Start(ctx)
	f.n.Start(ctx) // idempotent

	f.client.mu.Lock()
	registered := len(f.client.listeners)
	f.client.mu.Unlock()
	if registered != 1 {
		t.Fatalf("registered %d listeners, want 1", registered)
	}

	f.n.OnSyncStateChange(session.SyncSyncing)
	f.n.OnEvent(msgEvent("$live", "@alice:example.org", "through the loop"))

	f.n.Stop(ctx)
	if got := f.plat.displayedCount(); got != 1 {
		t.Fatalf("displayed %d notifications through the loop, want 1", got)
	}
	if f.n.pending.len() != 0 || f.n.index.rooms() != 0 {
		t.Fatalf("per-session state not cleared on stop")
	}

	f.client.mu.Lock()
	registered = len(f.client.listeners)
	f.client.mu.Unlock()
	if registered != 0 {
		t.Fatalf("%d listeners still registered after stop", registered)
	}

	// Signals after stop are refused, not queued.
	if f.n.post(signal{kind: sigEvent, ev: msgEvent("$dead", "@alice:example.org", "x")}) {
		t.Fatalf("post accepted after stop")
	}

	f.n.Stop(ctx) // idempotent
}
