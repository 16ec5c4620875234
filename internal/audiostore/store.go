// Package audiostore keeps synthesized clips on disk for the duration of a
// playback and guarantees each one is deleted exactly once.
package audiostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/ttsbot/internal/logging"
)

const (
	defaultPrefix = "tts-"
	defaultExt    = ".wav"
)

// Store writes clips into a single directory. Every file it creates carries
// the store prefix so Sweep can recognise leftovers from earlier processes.
type Store struct {
	dir    string
	prefix string
	ext    string

	mu   sync.Mutex
	live map[string]*Handle // path -> handle

	now func() time.Time
	log zerolog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithExtension sets the file extension used for new clips.
func WithExtension(ext string) Option {
	return func(s *Store) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.ext = ext
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates the directory if needed and returns a Store rooted there.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("audio store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}

	s := &Store{
		dir:    dir,
		prefix: defaultPrefix,
		ext:    defaultExt,
		live:   make(map[string]*Handle),
		now:    time.Now,
		log:    logging.Component("audiostore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory clips are written to.
func (s *Store) Dir() string { return s.dir }

// Put persists data under a fresh unique name.
func (s *Store) Put(data []byte) (*Handle, error) {
	if len(data) == 0 {
		return nil, errors.New("refusing to store empty audio")
	}

	name := s.prefix + uuid.NewString() + s.ext
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write audio file: %w", err)
	}

	h := &Handle{
		path:      path,
		size:      int64(len(data)),
		createdAt: s.now(),
		store:     s,
	}

	s.mu.Lock()
	s.live[path] = h
	s.mu.Unlock()

	s.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Audio stored")
	return h, nil
}

// Live returns how many handles have been issued and not yet released.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func (s *Store) forget(path string) {
	s.mu.Lock()
	delete(s.live, path)
	s.mu.Unlock()
}

// Sweep releases every clip in the directory older than maxAge, whether or
// not this process created it. It returns the number of files removed.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list audio directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	var errs []error

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), s.prefix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())

		s.mu.Lock()
		h, tracked := s.live[path]
		s.mu.Unlock()

		if tracked {
			if h.createdAt.After(cutoff) {
				continue
			}
			if err := h.Release(); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := removeIfExists(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("Swept stale audio files")
	}
	return removed, errors.Join(errs...)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(maxAge); err != nil {
				s.log.Error().Err(err).Msg("Error sweeping audio files")
			}
		}
	}
}

// Handle owns one stored clip.
type Handle struct {
	path      string
	size      int64
	createdAt time.Time
	store     *Store

	once sync.Once
	err  error
}

// Path returns the clip location on disk.
func (h *Handle) Path() string { return h.path }

// Size returns the clip size in bytes.
func (h *Handle) Size() int64 { return h.size }

// CreatedAt returns when the clip was stored.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// Open opens the clip for reading.
func (h *Handle) Open() (io.ReadCloser, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	return f, nil
}

// Release deletes the clip. Only the first call does any work; later calls
// return the first call's result. A file that is already gone counts as success.
func (h *Handle) Release() error {
	h.once.Do(func() {
		h.err = removeIfExists(h.path)
		if h.store != nil {
			h.store.forget(h.path)
			if h.err != nil {
				h.store.log.Warn().Err(h.err).Str("path", h.path).Msg("Failed to delete audio file")
			} else {
				h.store.log.Debug().Str("path", h.path).Msg("Audio released")
			}
		}
	})
	return h.err
}

func removeIfExists(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
