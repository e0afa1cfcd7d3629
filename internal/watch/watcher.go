// Package watch converts lens archives as they appear in a directory.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/zot/lensconv/internal/bundle"
	"github.com/zot/lensconv/internal/convert"
)

// Converter converts one archive.
type Converter interface {
	Convert(ctx context.Context, archivePath string) convert.Result
}

// Watcher watches a directory for new or rewritten archives and converts
// each one once its writes have settled. Archives that are symlinks are
// followed: their target directory is watched too.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	conv    Converter
	log     *zap.Logger

	// OnResult, when set, receives every conversion result.
	OnResult func(convert.Result)

	symlinkTargets map[string]string // archive path -> resolved target dir
	watchedDirs    map[string]int    // dir path -> reference count
	mu             sync.Mutex

	pending       map[string]time.Time
	pendingMu     sync.Mutex
	debounceDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for dir. debounce is how long an archive must go
// without events before it is converted.
func New(dir string, conv Converter, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:            abs,
		watcher:        watcher,
		conv:           conv,
		log:            log.With(zap.String("dir", abs)),
		symlinkTargets: make(map[string]string),
		watchedDirs:    make(map[string]int),
		pending:        make(map[string]time.Time),
		debounceDelay:  debounce,
	}, nil
}

// Start begins watching. Archives already present are queued when
// existing is true.
func (w *Watcher) Start(ctx context.Context, existing bool) error {
	if err := w.addWatch(w.dir); err != nil {
		w.watcher.Close()
		return err
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.watcher.Close()
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !bundle.IsArchive(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		w.updateSymlinkWatch(path)
		if existing {
			w.queue(path)
		}
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	w.log.Info("watching for lens archives")
	return nil
}

// Stop stops watching and waits for an in-flight conversion to finish.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context, existing bool) error {
	if err := w.Start(ctx, existing); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !bundle.IsArchive(event.Name) {
		return
	}
	w.log.Debug("event", zap.String("op", event.Op.String()), zap.String("path", event.Name))

	if filepath.Dir(event.Name) == w.dir {
		switch {
		case event.Has(fsnotify.Create):
			w.updateSymlinkWatch(event.Name)
		case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
			w.removeSymlinkWatch(event.Name)
		}
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		if path := w.resolveArchive(event.Name); path != "" {
			w.queue(path)
		}
	}
}

// queue (re)starts the debounce timer for path.
func (w *Watcher) queue(path string) {
	w.pendingMu.Lock()
	w.pending[path] = time.Now()
	w.pendingMu.Unlock()
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *Watcher) tick() time.Duration {
	t := w.debounceDelay / 4
	if t < 10*time.Millisecond {
		t = 10 * time.Millisecond
	}
	if t > 50*time.Millisecond {
		t = 50 * time.Millisecond
	}
	return t
}

// processPending converts archives that have been quiet for debounceDelay.
func (w *Watcher) processPending() {
	w.pendingMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range w.pending {
		if now.Sub(queuedAt) >= w.debounceDelay {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range ready {
		if w.ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); err != nil {
			w.log.Debug("archive gone before conversion", zap.String("path", path))
			continue
		}
		r := w.conv.Convert(w.ctx, path)
		if r.Success {
			w.log.Info("converted", zap.String("file", r.File), zap.String("name", r.Metadata.Name))
		} else {
			w.log.Warn("conversion failed", zap.String("file", r.File), zap.Error(r.Err))
		}
		if w.OnResult != nil {
			w.OnResult(r)
		}
	}
}

// updateSymlinkWatch watches the target directory of a symlinked archive.
func (w *Watcher) updateSymlinkWatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Lstat(path)
	if err != nil {
		return
	}

	if oldTarget, ok := w.symlinkTargets[path]; ok {
		w.removeWatchLocked(oldTarget)
		delete(w.symlinkTargets, path)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			w.log.Debug("cannot resolve symlink", zap.String("path", path), zap.Error(err))
			return
		}
		targetDir := filepath.Dir(target)
		w.symlinkTargets[path] = targetDir
		if err := w.addWatchLocked(targetDir); err != nil {
			w.log.Warn("cannot watch symlink target", zap.String("dir", targetDir), zap.Error(err))
		}
	}
}

func (w *Watcher) removeSymlinkWatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if targetDir, ok := w.symlinkTargets[path]; ok {
		w.removeWatchLocked(targetDir)
		delete(w.symlinkTargets, path)
	}
}

func (w *Watcher) addWatch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addWatchLocked(dir)
}

func (w *Watcher) addWatchLocked(dir string) error {
	w.watchedDirs[dir]++
	if w.watchedDirs[dir] == 1 {
		if err := w.watcher.Add(dir); err != nil {
			w.watchedDirs[dir]--
			return err
		}
	}
	return nil
}

func (w *Watcher) removeWatchLocked(dir string) {
	w.watchedDirs[dir]--
	if w.watchedDirs[dir] <= 0 {
		w.watcher.Remove(dir)
		delete(w.watchedDirs, dir)
	}
}

// resolveArchive maps a changed path to the archive in the watched
// directory it belongs to, or "" if none.
func (w *Watcher) resolveArchive(changed string) string {
	if filepath.Dir(changed) == w.dir {
		return changed
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	changedDir := filepath.Dir(changed)
	changedBase := filepath.Base(changed)
	for link, targetDir := range w.symlinkTargets {
		if targetDir != changedDir {
			continue
		}
		target, err := filepath.EvalSymlinks(link)
		if err == nil && filepath.Base(target) == changedBase {
			return link
		}
	}
	return ""
}
