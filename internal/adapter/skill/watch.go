package skill

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the registry whenever a file under the skill directory
// changes and then calls onChange. Bursts of events are debounced. Watching
// stops when ctx is cancelled or Close is called.
func (r *FileRegistry) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if r.cancel != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	entries, _ := os.ReadDir(r.dir)
	for _, e := range entries {
		if e.IsDir() {
			if err := watcher.Add(filepath.Join(r.dir, e.Name())); err != nil {
				r.logger.Warn("watch skill subdirectory", "name", e.Name(), "error", err)
			}
		}
	}

	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	watchCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.watchWg.Go(func() {
		defer watcher.Close()
		r.watchLoop(watchCtx, watcher, debounce, onChange)
	})
	return nil
}

// Close stops an active watch and waits for it to exit.
func (r *FileRegistry) Close() error {
	r.watchMu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.watchMu.Unlock()
	r.watchWg.Wait()
	return nil
}

func (r *FileRegistry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration, onChange func()) {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if ctx.Err() != nil {
				return
			}
			if err := r.Reload(ctx); err != nil {
				r.logger.Warn("skill reload failed during watch", "error", err)
				return
			}
			if onChange != nil {
				onChange()
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			scheduleReload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("skill watch error", "error", err)
		}
	}
}
