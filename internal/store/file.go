package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"classdesk/internal/domain"
)

const recordFileName = "pending_delete.json"

// FileStore keeps the record as one JSON file under the profile
// directory. It is the default backend: every agent instance for the
// same OS user profile sees the same file, and fsnotify delivers the
// change notifications.
type FileStore struct {
	path   string
	logger *zap.Logger
}

func NewFileStore(profileDir string, logger *zap.Logger) (*FileStore, error) {
	if profileDir == "" {
		return nil, errors.New("profile directory is required")
	}
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	return &FileStore{
		path:   filepath.Join(profileDir, recordFileName),
		logger: logger,
	}, nil
}

func (s *FileStore) Load(ctx context.Context) (*domain.PendingDelete, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return decodeRecord(data)
}

func (s *FileStore) Save(ctx context.Context, rec domain.PendingDelete) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Watch watches the profile directory rather than the file itself so
// that the atomic rename and the removal on clear are both observed.
func (s *FileStore) Watch(ctx context.Context) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != recordFileName {
					continue
				}
				events <- s.snapshotEvent(ev)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("file watch error", zap.Error(werr))
			}
		}
	}()
	return events, nil
}

func (s *FileStore) snapshotEvent(ev fsnotify.Event) Event {
	if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
			return Event{}
		}
	}
	rec, err := s.Load(context.Background())
	if err != nil {
		s.logger.Warn("ignoring unreadable record after change", zap.Error(err))
		return Event{}
	}
	return Event{Record: rec}
}

func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

func (s *FileStore) Close() error { return nil }

func decodeRecord(data []byte) (*domain.PendingDelete, error) {
	var rec domain.PendingDelete
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !rec.Valid() {
		return nil, fmt.Errorf("%w: failed validation", ErrCorrupt)
	}
	return &rec, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
