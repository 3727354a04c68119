// Package watcher triggers a debounced rescan and re-analysis of a vault
// when its files change on disk.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/vaultlens/internal/storage"
)

// DefaultDebounce is the quiet period after the last change before a vault
// is refreshed.
const DefaultDebounce = 500 * time.Millisecond

// RefreshFunc rescans and re-analyses one vault.
type RefreshFunc func(ctx context.Context, vaultID int64) error

// ChangeFunc is called for every relevant file event, before debouncing.
type ChangeFunc func(vaultID int64, rel string)

// Root is a watched vault.
type Root struct {
	VaultID int64
	Path    string
}

type watchedRoot struct {
	Root
	fs *storage.FS
}

// Watcher maps file system events to vault refreshes.
type Watcher struct {
	refresh  RefreshFunc
	onChange ChangeFunc
	debounce time.Duration
	fsOpts   []storage.FSOption
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a refresh.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnChange sets a callback for every relevant file event.
func WithOnChange(fn ChangeFunc) Option {
	return func(w *Watcher) { w.onChange = fn }
}

// WithStorageOptions sets the file filters, matching the scanner's.
func WithStorageOptions(opts ...storage.FSOption) Option {
	return func(w *Watcher) { w.fsOpts = append(w.fsOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher that calls refresh for changed vaults.
func New(refresh RefreshFunc, opts ...Option) *Watcher {
	w := &Watcher{
		refresh:  refresh,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches roots until ctx is cancelled. Directories created at runtime
// are added to the watch list. Refreshes run one at a time on the calling
// goroutine; events arriving meanwhile re-arm the vault's timer.
func (w *Watcher) Run(ctx context.Context, roots []Root) error {
	if len(roots) == 0 {
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	watched := make([]watchedRoot, 0, len(roots))
	for _, r := range roots {
		vfs, err := storage.NewFS(r.Path, w.fsOpts...)
		if err != nil {
			return err
		}
		wr := watchedRoot{Root: Root{VaultID: r.VaultID, Path: vfs.Root()}, fs: vfs}
		if err := addDirsRecursive(fw, wr); err != nil {
			return err
		}
		watched = append(watched, wr)
		w.logger.Info("watcher: started",
			slog.Int64("vault_id", r.VaultID),
			slog.String("root", wr.Path))
	}

	due := make(chan int64, len(roots))
	var mu sync.Mutex
	timers := make(map[int64]*time.Timer)
	schedule := func(vaultID int64) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[vaultID]; ok {
			t.Reset(w.debounce)
			return
		}
		timers[vaultID] = time.AfterFunc(w.debounce, func() {
			mu.Lock()
			delete(timers, vaultID)
			mu.Unlock()
			select {
			case due <- vaultID:
			case <-ctx.Done():
			}
		})
	}
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case vaultID := <-due:
			start := time.Now()
			if err := w.refresh(ctx, vaultID); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				w.logger.Warn("watcher: refresh failed",
					slog.Int64("vault_id", vaultID),
					slog.String("error", err.Error()))
				continue
			}
			w.logger.Debug("watcher: refreshed",
				slog.Int64("vault_id", vaultID),
				slog.Duration("duration", time.Since(start)))

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			root, rel, ok := match(watched, ev.Name)
			if !ok {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if root.fs.SkipDir(rel) {
						continue
					}
					if addErr := addDirsRecursive(fw, watchedRoot{Root: Root{VaultID: root.VaultID, Path: ev.Name}, fs: root.fs}); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may have landed before the directory was watched.
					w.changed(root.VaultID, rel)
					schedule(root.VaultID)
					continue
				}
			}

			// Removed or renamed directories have no extension and are
			// indistinguishable from files after the fact; let them through.
			if filepath.Ext(rel) != "" && !root.fs.Eligible(rel) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.changed(root.VaultID, rel)
			schedule(root.VaultID)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) changed(vaultID int64, rel string) {
	w.logger.Debug("watcher: change",
		slog.Int64("vault_id", vaultID),
		slog.String("path", rel))
	if w.onChange != nil {
		w.onChange(vaultID, rel)
	}
}

// match finds the root containing abs and returns the slash separated
// relative path. Paths inside skipped directories do not match.
func match(roots []watchedRoot, abs string) (watchedRoot, string, bool) {
	for _, r := range roots {
		rel, err := filepath.Rel(r.Path, abs)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		parts := strings.Split(rel, "/")
		for i := 1; i < len(parts); i++ {
			if r.fs.SkipDir(strings.Join(parts[:i], "/")) {
				return watchedRoot{}, "", false
			}
		}
		return r, rel, true
	}
	return watchedRoot{}, "", false
}

// addDirsRecursive adds dir and its subdirectories to the watcher, leaving
// out directories the scanner skips.
func addDirsRecursive(fw *fsnotify.Watcher, dir watchedRoot) error {
	base := dir.fs.Root()
	return filepath.WalkDir(dir.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != base {
			rel, relErr := filepath.Rel(base, p)
			if relErr != nil {
				return relErr
			}
			if dir.fs.SkipDir(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
		}
		return fw.Add(p)
	})
}
