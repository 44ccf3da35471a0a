// Package store persists metadata records as JSON files, one file per record.
//
// Writes go through an atomic replace (temp file in the same directory, fsync,
// rename), so a failed write never corrupts the previously stored record.
// Records are addressed by ID; listing returns every stored ID.
package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record exists for the requested ID.
var ErrNotFound = errors.New("record not found")

// Store is a directory of JSON record files. Safe for concurrent use:
// reads and atomic renames do not interfere, and callers that need
// read-modify-write linearization take the per-record Lock, which holds
// even across processes sharing the directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes a record atomically. An existing record with the same ID is
// replaced; on any failure the previous record remains intact.
func (s *Store) Put(id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync record %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close record %s: %w", id, err)
	}

	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace record %s: %w", id, err)
	}
	return nil
}

// Get reads a record into out. Returns ErrNotFound if no record exists.
func (s *Store) Get(id string, out any) error {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read record %s: %w", id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a record exists for the ID.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes a record. Returns ErrNotFound if no record exists.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	os.Remove(s.lockPath(id))
	return nil
}

// Lock takes an exclusive advisory lock for the record's ID, blocking until
// it is available, and returns the release func. The lock is backed by a
// flock on a sibling .lock file, so read-modify-write cycles serialize
// across every process sharing the store directory, not just within one.
func (s *Store) Lock(id string) (release func(), err error) {
	f, err := os.OpenFile(s.lockPath(id), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file for %s: %w", id, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock record %s: %w", id, err)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

// IDs returns every stored record ID, sorted lexically. Callers that need
// creation order sort on the timestamps carried inside their records.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	ids, err := s.IDs()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.dir, id+".lock")
}

// NewID generates a record ID of the form <prefix>_<12 hex chars>.
func NewID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:])[:12]
}
