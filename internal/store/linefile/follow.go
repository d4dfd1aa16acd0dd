package linefile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Follow calls fn for every complete line appended to the transcript for key
// after Follow starts. It blocks until ctx is done. The transcript does not need
// to exist yet.
func (s *Store) Follow(ctx context.Context, key string, fn func(line string)) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Watch the directory rather than the file so creation is observed too.
	if err := watcher.Add(s.root); err != nil {
		return fmt.Errorf("watch transcript directory: %w", err)
	}

	path := filepath.Clean(s.Path(key))
	t := &tail{path: path}
	if info, err := os.Stat(path); err == nil {
		t.offset = info.Size()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := t.read(fn); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch transcript: %w", err)
		}
	}
}

type tail struct {
	path    string
	offset  int64
	partial []byte
}

// read emits complete lines written since the last call. A shrinking file is
// read again from the start.
func (t *tail) read(fn func(line string)) error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat transcript: %w", err)
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek transcript: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	t.offset += int64(len(data))
	t.partial = append(t.partial, data...)

	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		fn(string(t.partial[:i]))
		t.partial = t.partial[i+1:]
	}

	return nil
}
