package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"maunium.net/go/mautrix/id"

	"mxnotify/pkg/logx"
)

// fileStore is a dependency-free persistence backend: a single JSON snapshot
// rewritten atomically (tmp + rename) on every change. Settings are small
// and change rarely, so write-through is fine.
type fileStore struct {
	*memoryStore

	log  logx.Logger
	path string
}

type snapshot struct {
	Values          []snapshotValue `json:"values"`
	PromptDismissed bool            `json:"prompt_dismissed"`
}

type snapshotValue struct {
	Key   string    `json:"key"`
	Scope id.RoomID `json:"scope,omitempty"`
	Level Level     `json:"level"`
	Value bool      `json:"value"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("settings.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	mem := &memoryStore{values: map[valueKey]bool{}}
	s := &fileStore{memoryStore: mem, log: log, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	// Write-through with the store lock held keeps snapshots ordered.
	mem.onChange = s.persistLocked
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for _, v := range snap.Values {
		s.values[valueKey{key: v.Key, scope: v.Scope, level: v.Level}] = v.Value
	}
	s.promptDismissed = snap.PromptDismissed
	return nil
}

// persistLocked is called by memoryStore with its lock held.
func (s *fileStore) persistLocked() {
	snap := snapshot{PromptDismissed: s.promptDismissed}
	for k, v := range s.values {
		snap.Values = append(snap.Values, snapshotValue{Key: k.key, Scope: k.scope, Level: k.level, Value: v})
	}
	b, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		s.log.Warn("settings snapshot marshal failed", logx.Err(err))
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		s.log.Warn("settings snapshot write failed", logx.Err(err), logx.String("path", tmp))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Warn("settings snapshot rename failed", logx.Err(err), logx.String("path", s.path))
	}
}

func (s *fileStore) Close() error { return nil }
