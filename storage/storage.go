// Package storage persists the bot's durable state as two small JSON
// documents: the VIP allowlist and the last-consumed update offset. Each
// document is read once at startup and rewritten in full on every mutation.
// The package also owns the scratch directory for downloaded voice files.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

type Store struct {
	vipPath    string
	offsetPath string
	filesDir   string
}

// Open prepares the data directory (and the files/ scratch dir under it).
func Open(dataDir string) (*Store, error) {
	s := &Store{
		vipPath:    filepath.Join(dataDir, "vip_users.json"),
		offsetPath: filepath.Join(dataDir, "last_offset.json"),
		filesDir:   filepath.Join(dataDir, "files"),
	}
	if err := os.MkdirAll(s.filesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return s, nil
}

// FilesDir returns the scratch directory for downloaded voice files.
func (s *Store) FilesDir() string { return s.filesDir }

// Ping reports whether the data directory is still usable.
func (s *Store) Ping() error {
	if _, err := os.Stat(s.filesDir); err != nil {
		return fmt.Errorf("data dir unavailable: %w", err)
	}
	return nil
}

type vipDoc struct {
	VIPUsers []int64 `json:"vip_users"`
}

type offsetDoc struct {
	Offset int `json:"offset"`
}

// LoadVIPUsers returns the persisted allowlist. A missing or unreadable
// document yields an empty set, matching first-run behavior.
func (s *Store) LoadVIPUsers() []int64 {
	raw, err := os.ReadFile(s.vipPath)
	if err != nil {
		return nil
	}
	var doc vipDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Warn("vip document unreadable; starting with empty set",
			slog.String("path", s.vipPath), slog.Any("err", err))
		return nil
	}
	return doc.VIPUsers
}

// SaveVIPUsers rewrites the allowlist document in full.
func (s *Store) SaveVIPUsers(users []int64) error {
	if users == nil {
		users = []int64{}
	}
	return s.writeJSON(s.vipPath, vipDoc{VIPUsers: users})
}

// LoadOffset returns the persisted cursor; ok is false when none exists yet.
func (s *Store) LoadOffset() (offset int, ok bool) {
	raw, err := os.ReadFile(s.offsetPath)
	if err != nil {
		return 0, false
	}
	var doc offsetDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Warn("offset document unreadable; starting from zero",
			slog.String("path", s.offsetPath), slog.Any("err", err))
		return 0, false
	}
	return doc.Offset, true
}

// SaveOffset rewrites the cursor document in full.
func (s *Store) SaveOffset(offset int) error {
	return s.writeJSON(s.offsetPath, offsetDoc{Offset: offset})
}

// writeJSON replaces the document via temp file + rename so a crash
// mid-write cannot leave a torn document behind.
func (s *Store) writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
