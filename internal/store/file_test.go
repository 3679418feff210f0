package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"classdesk/internal/domain"
)

func testRecord() domain.PendingDelete {
	return domain.PendingDelete{
		Active:        true,
		TargetID:      "class_42",
		Scope:         domain.ScopeSeries,
		Message:       "Algebra II, Tuesdays",
		EndsAtEpochMs: time.Now().Add(5 * time.Second).UnixMilli(),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected empty store, got %+v err=%v", got, err)
	}

	rec := testRecord()
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || *got != rec {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, rec)
	}

	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, recordFileName)); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("clear must remove the file, not write an empty record")
	}
	got, err = s.Load(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected empty store after clear, got %+v err=%v", got, err)
	}

	// Clearing an absent record is a no-op.
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestFileStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, recordFileName), []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	_, err = s.Load(context.Background())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFileStoreRejectsInvalidRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	// Parses fine but violates the record invariants (no deadline).
	if err := os.WriteFile(filepath.Join(dir, recordFileName),
		[]byte(`{"active":true,"targetId":"x","scope":"single","message":"","endsAtEpochMs":0}`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err = s.Load(context.Background())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for invalid record, got %v", err)
	}
}

func TestFileStoreWatchSeesSiblingWrites(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewFileStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore writer: %v", err)
	}
	watcherStore, err := NewFileStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := watcherStore.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	rec := testRecord()
	if err := writer.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ev := waitEvent(t, events, func(ev Event) bool { return ev.Record != nil })
	if ev.Record.TargetID != rec.TargetID {
		t.Fatalf("watched record mismatch: %+v", ev.Record)
	}

	if err := writer.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	waitEvent(t, events, func(ev Event) bool { return ev.Record == nil })
}

func waitEvent(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("watch channel closed early")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for watch event")
		}
	}
}
