package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{
  "logging": {"level": "debug", "console": true},
  "session": {"user_id": "@me:example.org"},
  "platform": {"backend": "log"},
  "notifier": {
    "sound_rate_per_sec": 2,
    "quiet_hours": [{"start": "0 22 * * *", "duration": "8h"}]
  }
}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Session.UserID != "@me:example.org" {
		t.Fatalf("UserID = %q", cfg.Session.UserID)
	}
	if cfg.Notifier.SoundRatePerSec != 2 {
		t.Fatalf("SoundRatePerSec = %d, want 2", cfg.Notifier.SoundRatePerSec)
	}
	if len(cfg.Notifier.QuietHours) != 1 || cfg.Notifier.QuietHours[0].Duration != "8h" {
		t.Fatalf("QuietHours = %+v", cfg.Notifier.QuietHours)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
logging:
  level: info
  console: true
session:
  user_id: "@me:example.org"
platform:
  backend: telegram
  telegram:
    token: "t0k"
    chat_id: 42
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform.Backend != "telegram" || cfg.Platform.Telegram.ChatID != 42 {
		t.Fatalf("Platform = %+v", cfg.Platform)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"logging": {"console": true}, "bogus": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestSettingsBusyTimeout(t *testing.T) {
	t.Parallel()
	d, err := SettingsConfig{}.BusyTimeoutDuration()
	if err != nil || d != 0 {
		t.Fatalf("empty: %v %v", d, err)
	}
	d, err = SettingsConfig{BusyTimeout: "90s"}.BusyTimeoutDuration()
	if err != nil || d != 90*time.Second {
		t.Fatalf("parse: %v %v", d, err)
	}
	if _, err := (SettingsConfig{BusyTimeout: "soon"}).BusyTimeoutDuration(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if _, err := (SettingsConfig{BusyTimeout: "-1s"}).BusyTimeoutDuration(); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestQuietHoursWindowDuration(t *testing.T) {
	t.Parallel()
	qh := QuietHoursConfig{Start: "0 22 * * *", Duration: "8h"}
	d, err := qh.WindowDuration()
	if err != nil || d != 8*time.Hour {
		t.Fatalf("parse: %v %v", d, err)
	}
	// A quiet window needs a length; empty and zero are both dead windows.
	for _, raw := range []string{"", "0s"} {
		qh.Duration = raw
		if _, err := qh.WindowDuration(); err == nil {
			t.Fatalf("duration %q accepted", raw)
		}
	}
}
