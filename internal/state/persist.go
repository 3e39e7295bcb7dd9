package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type snapshot struct {
	Current  int        `json:"current"`
	Sessions []*Session `json:"sessions"`
}

func loadSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	for _, sess := range snap.Sessions {
		if sess.Mask == nil {
			sess.Mask = Mask{}
		}
		if sess.Messages == nil {
			sess.Messages = []Message{}
		}
	}
	return &snap, nil
}

// Save writes the current collection to the persistence path.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	snap := snapshot{Current: s.current, Sessions: make([]*Session, 0, len(s.sessions))}
	for _, sess := range s.sessions {
		snap.Sessions = append(snap.Sessions, sess.Clone())
	}
	s.mu.RUnlock()
	return writeJSONFile(s.path, snap)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
