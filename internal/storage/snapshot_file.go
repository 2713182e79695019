package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"liquidityLedger/internal/model"
)

// FileSnapshotStore keeps the replay snapshot in a single JSON file, replaced atomically.
type FileSnapshotStore struct {
	Path string
}

func (s *FileSnapshotStore) LoadSnapshot(_ context.Context) (model.LedgerSnapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.LedgerSnapshot{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.LedgerSnapshot{}, false, nil
		}
		return model.LedgerSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap model.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *FileSnapshotStore) SaveSnapshot(_ context.Context, snap model.LedgerSnapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
