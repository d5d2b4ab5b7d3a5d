package settings

import (
	"sync"

	"maunium.net/go/mautrix/id"
)

type valueKey struct {
	key   string
	scope id.RoomID
	level Level
}

// memoryStore keeps everything in process memory. It backs the "memory"
// driver and is embedded by the file driver for its working set.
type memoryStore struct {
	mu              sync.Mutex
	values          map[valueKey]bool
	promptDismissed bool

	// onChange, when set, is called with the lock held after every write.
	onChange func()
}

// NewMemory returns a Store with process-lifetime persistence only.
func NewMemory() Store { return &memoryStore{values: map[valueKey]bool{}} }

func (s *memoryStore) IsLevelSupported(level Level) bool {
	return level == LevelDevice || level == LevelAccount
}

func (s *memoryStore) GetValue(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[valueKey{key: key, level: LevelDevice}]; ok {
		return v
	}
	if v, ok := s.values[valueKey{key: key, level: LevelAccount}]; ok {
		return v
	}
	return false
}

func (s *memoryStore) SetValue(key string, roomID id.RoomID, level Level, value bool) error {
	if !s.IsLevelSupported(level) {
		return ErrUnsupportedLevel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[valueKey{key: key, scope: roomID, level: level}] = value
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}

func (s *memoryStore) PromptDismissed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptDismissed
}

func (s *memoryStore) SetPromptDismissed(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptDismissed = v
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}

func (s *memoryStore) Close() error { return nil }
