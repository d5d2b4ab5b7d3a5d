package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Session  SessionConfig  `json:"session"`
	Platform PlatformConfig `json:"platform"`
	Settings SettingsConfig `json:"settings,omitempty"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SessionConfig identifies the local user and the signal source.
type SessionConfig struct {
	// UserID is the local user's Matrix ID; events from this sender never notify.
	UserID string `json:"user_id"`
	// Feed is a JSONL file of recorded session signals. Empty reads stdin.
	Feed string `json:"feed,omitempty"`
}

// PlatformConfig selects the notification backend.
type PlatformConfig struct {
	// Backend is "log" (default) or "telegram".
	Backend  string         `json:"backend,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// SettingsConfig controls settings persistence.
//
// Example:
//
//	"settings": { "driver": "file", "path": "./mxnotify_settings.json" }
type SettingsConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// BusyTimeoutDuration parses the sqlite busy timeout. Empty means 0, which
// leaves the driver default in place.
func (c SettingsConfig) BusyTimeoutDuration() (time.Duration, error) {
	return parseDuration("settings.busy_timeout", c.BusyTimeout)
}

// NotifierConfig tunes the engine. All durations are Go duration strings
// (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	// SignalBuffer is the inbound signal channel capacity (default 256).
	SignalBuffer int `json:"signal_buffer,omitempty"`
	// SoundRatePerSec caps audible alerts per second (default 1).
	SoundRatePerSec int `json:"sound_rate_per_sec,omitempty"`
	// DefaultSoundURL plays when a room has no custom sound.
	DefaultSoundURL string `json:"default_sound_url,omitempty"`
	// QuietHours suppress all dispatch inside the listed windows.
	QuietHours []QuietHoursConfig `json:"quiet_hours,omitempty"`
}

// QuietHoursConfig is one suppression window: a standard 5-field cron spec
// for the window start, plus its duration.
//
// Example: {"start": "0 22 * * *", "duration": "8h"}
type QuietHoursConfig struct {
	Start    string `json:"start"`
	Duration string `json:"duration"`
}

// WindowDuration parses the window length. Quiet windows of zero or negative
// length can never contain an instant, so those are rejected here rather than
// silently configuring a dead window.
func (q QuietHoursConfig) WindowDuration() (time.Duration, error) {
	d, err := parseDuration("notifier.quiet_hours.duration", q.Duration)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("notifier.quiet_hours: window %q needs a positive duration", q.Start)
	}
	return d, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}
