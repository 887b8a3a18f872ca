package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gigurra/stemdeck/cmd/common/audio/decode"
	"github.com/samber/lo"
)

// Watcher reports changes to the audio files behind a session.
type Watcher struct {
	fs   *fsnotify.Watcher
	dirs []string
}

// NewWatcher watches the directories of paths. Files are watched through
// their parent directory so that editors replacing them are noticed too.
func NewWatcher(paths []string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dirs := lo.Uniq(lo.Map(paths, func(p string, _ int) string {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
		return filepath.Dir(p)
	}))
	for _, dir := range dirs {
		if err := fs.Add(dir); err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return &Watcher{fs: fs, dirs: dirs}, nil
}

// Run calls reload once the audio files have been quiet for debounce after a
// change. It blocks until ctx is done and then closes the watcher.
func (w *Watcher) Run(ctx context.Context, debounce time.Duration, reload func()) {
	defer func() { _ = w.fs.Close() }()

	var mu sync.Mutex
	var timer *time.Timer
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, reload)
	}
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}()

	slog.Debug("watching stems", "dirs", w.dirs)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !decode.Supported(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("stem changed", "file", event.Name, "op", event.Op.String())
				trigger()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", "error", err)
		}
	}
}
