// Package identity loads, creates, and persists the per-installation ZID
// (ZRTP identifier): 12 random bytes that outlive any single session.
// Grounded on the teacher's directory.Cache, which caches consensus and
// microdescriptor data as JSON under a dotfile directory; the ZID store
// upgrades that pattern with a write-temp-then-rename so a crash never
// leaves a torn identity file (directory.Cache does not need that
// guarantee since its caches are safely re-fetchable).
package identity

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmdx/voiz-go/primitives"
)

// Len is the size of a ZID in bytes.
const Len = 12

// ZID is a 12-byte per-installation identifier.
type ZID [Len]byte

func (z ZID) String() string {
	return hex.EncodeToString(z[:])
}

// DefaultPath returns ~/.voiz_cache, the default identity-store location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".voiz_cache"
	}
	return filepath.Join(home, ".voiz_cache")
}

// onDiskCache is the single-key map persisted to the identity-store file.
type onDiskCache struct {
	ZID string `json:"zid"`
}

// Store loads, creates, and persists a ZID at a fixed path. Concurrent
// access by multiple processes is not supported; last writer wins.
type Store struct {
	Path string
	zid  ZID
}

// NewStore returns a Store rooted at path. If path is empty, DefaultPath is used.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{Path: path}
}

// LoadOrCreate reads the ZID from disk, or generates and persists a fresh
// one if the file is absent or unreadable.
func (s *Store) LoadOrCreate() (ZID, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return s.create()
	}

	var cache onDiskCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return s.create()
	}

	raw, err := hex.DecodeString(cache.ZID)
	if err != nil || len(raw) != Len {
		return s.create()
	}

	copy(s.zid[:], raw)
	return s.zid, nil
}

// ZID returns the currently loaded identifier. Only valid after LoadOrCreate.
func (s *Store) ZID() ZID {
	return s.zid
}

func (s *Store) create() (ZID, error) {
	raw, err := primitives.RandomBytes(Len)
	if err != nil {
		return ZID{}, fmt.Errorf("generate ZID: %w", err)
	}
	var z ZID
	copy(z[:], raw)
	s.zid = z
	if err := s.save(); err != nil {
		return ZID{}, fmt.Errorf("persist ZID: %w", err)
	}
	return z, nil
}

func (s *Store) save() error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.Marshal(onDiskCache{ZID: hex.EncodeToString(s.zid[:])})
	if err != nil {
		return fmt.Errorf("marshal identity cache: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp identity file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename temp identity file: %w", err)
	}
	return nil
}
