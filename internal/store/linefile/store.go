// Package linefile provides a plain text transcript store with one file per peer.
package linefile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hay-kot/mqchat/internal/core/transcript"
)

// FilePrefix is prepended to the peer identity to form a transcript file name.
// There is no separator between the prefix and the identity; existing transcripts
// depend on this.
const FilePrefix = "chat"

// ErrInvalidKey is returned for keys that cannot be used as a file name suffix.
var ErrInvalidKey = errors.New("invalid transcript key")

// Store implements transcript.Store with append-only text files under a root
// directory. Appends to the same key are serialized; different keys never contend.
type Store struct {
	root  string
	now   func() time.Time
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{
		root:  dir,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock replaces the clock used to stamp messages that carry no time.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Root returns the directory transcripts are written to.
func (s *Store) Root() string {
	return s.root
}

// Path returns the file path for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.root, FilePrefix+key)
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Append writes one line for msg and syncs it to disk before returning.
func (s *Store) Append(ctx context.Context, key string, msg transcript.Message) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if msg.At.IsZero() {
		msg.At = s.now()
	}

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}

	f, err := os.OpenFile(s.Path(key), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}

	w := bufio.NewWriter(f)
	_, _ = w.WriteString(msg.Line())
	_ = w.WriteByte('\n')

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close transcript: %w", err)
	}

	return nil
}

// ReadAll returns every line written for key, oldest first.
// Returns transcript.ErrNotFound if the transcript does not exist.
func (s *Store) ReadAll(ctx context.Context, key string) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	f, err := os.Open(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, transcript.ErrNotFound
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close() //nolint:errcheck

	lines, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return lines, nil
}

// readLines splits r on newlines with no limit on line length. A trailing
// line without a newline is kept.
func readLines(r io.Reader) ([]string, error) {
	lines := []string{}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimSuffix(line, "\n"))
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// List returns the keys of all transcripts in the root directory.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := strings.CutPrefix(entry.Name(), FilePrefix)
		if !ok || key == "" {
			continue
		}
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}
