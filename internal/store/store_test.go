package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type record struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestPutGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	want := record{ID: "job_abc", Value: 7}
	if err := s.Put(want.ID, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var got record
	if err := s.Get(want.ID, &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var out record
	if err := s.Get("missing", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPut_ReplacesExisting(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.Put("job_abc", record{ID: "job_abc", Value: 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put("job_abc", record{ID: "job_abc", Value: 2}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var got record
	if err := s.Get("job_abc", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value != 2 {
		t.Errorf("expected replaced value 2, got %d", got.Value)
	}

	// No temp files left behind
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestPut_FailureLeavesPriorRecord(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.Put("job_abc", record{ID: "job_abc", Value: 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Unencodable value fails before any file is touched
	if err := s.Put("job_abc", func() {}); err == nil {
		t.Fatal("expected encode error")
	}

	var got record
	if err := s.Get("job_abc", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value != 1 {
		t.Errorf("prior record corrupted: %+v", got)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.Put("job_abc", record{ID: "job_abc"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete("job_abc"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Exists("job_abc") {
		t.Error("record still exists after delete")
	}
	if err := s.Delete("job_abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestIDs_IgnoresNonRecordFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.Put("a", record{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put("b", record{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ids, err := s.IDs()
	if err != nil {
		t.Fatalf("IDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs = %v, want [a b]", ids)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}
}

func TestNewID(t *testing.T) {
	t.Parallel()

	id := NewID("job")
	if !strings.HasPrefix(id, "job_") {
		t.Errorf("expected job_ prefix, got %q", id)
	}
	if len(id) != len("job_")+12 {
		t.Errorf("expected 12 hex chars after prefix, got %q", id)
	}
	if id == NewID("job") {
		t.Error("expected unique IDs")
	}
}

func TestLock_SerializesAcrossStores(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s1, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s2, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	release, err := s1.Lock("job_abc")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := s2.Lock("job_abc")
		if err != nil {
			t.Errorf("second Lock failed: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was still held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second lock not acquired after release")
	}
}

func TestLock_FilesInvisibleToListing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	release, err := s.Lock("job_abc")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	release()

	if err := s.Put("job_abc", record{ID: "job_abc", Value: 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	ids, err := s.IDs()
	if err != nil {
		t.Fatalf("IDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "job_abc" {
		t.Errorf("IDs = %v, want [job_abc]", ids)
	}

	// Delete cleans up the lock file along with the record
	if err := s.Delete("job_abc"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".lock") {
			t.Errorf("leftover lock file: %s", e.Name())
		}
	}
}
