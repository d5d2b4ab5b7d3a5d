package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"maunium.net/go/mautrix/id"

	"mxnotify/pkg/logx"
)

// ReplayClient is a Client fed from a JSON Lines stream of recorded session
// signals. It exists so the daemon (and integration tests) can exercise the
// engine without a live homeserver connection.
//
// Line kinds:
//
//	{"kind":"room","room":{"id":"!r:x","name":"Ops","unread":2}}
//	{"kind":"event","event":{...},"actions":{"notify":true,"tweaks":{"sound":true}}}
//	{"kind":"decrypted","event":{...}}
//	{"kind":"receipt","room_id":"!r:x","unread":0}
//	{"kind":"sync","state":"SYNCING"}
//
// A "room" line declares or updates room metadata. "receipt" lines update the
// room's unread count before listeners run.
type ReplayClient struct {
	log    logx.Logger
	userID id.UserID
	guest  bool

	mu        sync.Mutex
	rooms     map[id.RoomID]*replayRoom
	actions   map[id.EventID]*PushActions
	listeners []Listener
}

func NewReplayClient(userID id.UserID, log logx.Logger) *ReplayClient {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ReplayClient{
		log:     log,
		userID:  userID,
		rooms:   map[id.RoomID]*replayRoom{},
		actions: map[id.EventID]*PushActions{},
	}
}

func (c *ReplayClient) UserID() id.UserID { return c.userID }
func (c *ReplayClient) IsGuest() bool     { return c.guest }

func (c *ReplayClient) Room(roomID id.RoomID) Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	return r
}

func (c *ReplayClient) PushActionsForEvent(ev *Event) *PushActions {
	if ev == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.actions[ev.ID]; ok {
		return a
	}
	// Recorded feeds without an actions field default to a plain notify.
	return &PushActions{Notify: true}
}

func (c *ReplayClient) AvatarURLForMember(room Room, userID id.UserID) string {
	// Replay feeds carry no media; avatars resolve to nothing.
	return ""
}

func (c *ReplayClient) AddListener(l Listener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *ReplayClient) RemoveListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.listeners {
		if x == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *ReplayClient) snapshotListeners() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Listener(nil), c.listeners...)
}

type replayLine struct {
	Kind    string       `json:"kind"`
	Room    *roomLine    `json:"room,omitempty"`
	Event   *Event       `json:"event,omitempty"`
	Actions *PushActions `json:"actions,omitempty"`
	RoomID  id.RoomID    `json:"room_id,omitempty"`
	Unread  *int         `json:"unread,omitempty"`
	State   SyncState    `json:"state,omitempty"`
}

type roomLine struct {
	ID             id.RoomID                 `json:"id"`
	Name           string                    `json:"name,omitempty"`
	CanonicalAlias id.RoomAlias              `json:"canonical_alias,omitempty"`
	AltAliases     []id.RoomAlias            `json:"alt_aliases,omitempty"`
	Unread         int                       `json:"unread,omitempty"`
	AccountData    map[string]map[string]any `json:"account_data,omitempty"`
}

// Run decodes the stream and dispatches each line to registered listeners in
// order, one at a time. It returns on EOF, decode error, or ctx cancellation.
func (c *ReplayClient) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lineNo++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line replayLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("feed line %d: %w", lineNo, err)
		}
		c.dispatch(line)
	}
	return sc.Err()
}

func (c *ReplayClient) dispatch(line replayLine) {
	switch line.Kind {
	case "room":
		if line.Room == nil {
			return
		}
		c.upsertRoom(line.Room)

	case "event":
		if line.Event == nil {
			return
		}
		if line.Actions != nil {
			c.mu.Lock()
			c.actions[line.Event.ID] = line.Actions
			c.mu.Unlock()
		}
		for _, l := range c.snapshotListeners() {
			l.OnEvent(line.Event)
		}

	case "decrypted":
		if line.Event == nil {
			return
		}
		for _, l := range c.snapshotListeners() {
			l.OnEventDecrypted(line.Event)
		}

	case "receipt":
		c.mu.Lock()
		r := c.rooms[line.RoomID]
		if r != nil && line.Unread != nil {
			r.setUnread(*line.Unread)
		}
		c.mu.Unlock()
		if r == nil {
			c.log.Debug("receipt for unknown room", logx.String("room", line.RoomID.String()))
			return
		}
		for _, l := range c.snapshotListeners() {
			l.OnRoomReceipt(line.Event, r)
		}

	case "sync":
		for _, l := range c.snapshotListeners() {
			l.OnSyncStateChange(line.State)
		}

	default:
		c.log.Debug("unknown feed line kind", logx.String("kind", line.Kind))
	}
}

func (c *ReplayClient) upsertRoom(rl *roomLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[rl.ID]
	if !ok {
		r = &replayRoom{id: rl.ID}
		c.rooms[rl.ID] = r
	}
	r.mu.Lock()
	r.name = rl.Name
	r.alias = rl.CanonicalAlias
	r.altAliases = append([]id.RoomAlias(nil), rl.AltAliases...)
	r.unread = rl.Unread
	if rl.AccountData != nil {
		r.accountData = rl.AccountData
	}
	r.mu.Unlock()
}

type replayRoom struct {
	id id.RoomID

	mu          sync.Mutex
	name        string
	alias       id.RoomAlias
	altAliases  []id.RoomAlias
	unread      int
	accountData map[string]map[string]any
}

func (r *replayRoom) ID() id.RoomID { return r.id }

func (r *replayRoom) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

func (r *replayRoom) CanonicalAlias() id.RoomAlias {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alias
}

func (r *replayRoom) AltAliases() []id.RoomAlias {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]id.RoomAlias(nil), r.altAliases...)
}

func (r *replayRoom) UnreadNotificationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread
}

func (r *replayRoom) setUnread(n int) {
	r.mu.Lock()
	r.unread = n
	r.mu.Unlock()
}

func (r *replayRoom) AccountData(eventType string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.accountData == nil {
		return nil
	}
	return r.accountData[eventType]
}
