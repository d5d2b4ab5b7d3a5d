// Package settings persists the boolean flags that gate notification
// behavior, plus the device-local opt-in prompt flag.
package settings

import (
	"errors"
	"strings"
	"time"

	"maunium.net/go/mautrix/id"

	"mxnotify/pkg/logx"
)

// Level is the scope a setting is written at. Device-level values override
// account-level values on read.
type Level string

const (
	LevelDevice  Level = "device"
	LevelAccount Level = "account"
)

// Well-known setting keys.
const (
	KeyNotificationsEnabled      = "notifications_enabled"
	KeyNotificationBodyEnabled   = "notification_body_enabled"
	KeyAudioNotificationsEnabled = "audio_notifications_enabled"
)

var ErrUnsupportedLevel = errors.New("settings: unsupported level")

// Facade is the engine's view of persisted settings.
type Facade interface {
	// GetValue reads the effective global value for key
	// (device level wins over account level; absent means false).
	GetValue(key string) bool

	// SetValue writes key at the given level. roomID scopes the value to a
	// room; the zero roomID writes the global value.
	SetValue(key string, roomID id.RoomID, level Level, value bool) error

	IsLevelSupported(level Level) bool
}

// DeviceFlags persists coarse device-local flags independently of the
// settings facade. Today that is a single flag: whether the user has
// dismissed the notifications opt-in prompt.
type DeviceFlags interface {
	PromptDismissed() bool
	SetPromptDismissed(v bool) error
}

// Store is the full persistence API handed to the daemon.
type Store interface {
	Facade
	DeviceFlags
	Close() error
}

// Config configures settings persistence.
//
// Driver values:
//   - "file": dependency-free JSON snapshot backend
//   - "sqlite": SQLite database file (optional build tag)
//   - "memory" or empty: process-lifetime only
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown settings driver: " + cfg.Driver)
	}
}
