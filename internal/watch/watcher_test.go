package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/lensconv/internal/convert"
	"github.com/zot/lensconv/internal/metadata"
)

type fakeConverter struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeConverter) Convert(ctx context.Context, path string) convert.Result {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	meta := metadata.Fallback(path)
	return convert.Result{File: filepath.Base(path), Path: path, Success: true, Metadata: &meta}
}

func (f *fakeConverter) converted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func startWatcher(t *testing.T, dir string, existing bool) (*Watcher, *fakeConverter, chan convert.Result) {
	t.Helper()
	conv := &fakeConverter{}
	w, err := New(dir, conv, 30*time.Millisecond, nil)
	require.NoError(t, err)
	results := make(chan convert.Result, 16)
	w.OnResult = func(r convert.Result) { results <- r }
	require.NoError(t, w.Start(context.Background(), existing))
	t.Cleanup(func() { w.Stop() })
	return w, conv, results
}

func waitResult(t *testing.T, results chan convert.Result) convert.Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for conversion")
		return convert.Result{}
	}
}

func TestWatcher_ConvertsNewArchive(t *testing.T) {
	dir := t.TempDir()
	_, conv, results := startWatcher(t, dir, false)

	path := filepath.Join(dir, "new.lns")
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0644))

	r := waitResult(t, results)
	assert.Equal(t, "new.lns", r.File)
	abs, _ := filepath.Abs(path)
	assert.Equal(t, []string{abs}, conv.converted())
}

func TestWatcher_DebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	_, conv, results := startWatcher(t, dir, false)

	path := filepath.Join(dir, "busy.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	waitResult(t, results)
	// give a second conversion a chance to show up
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, conv.converted(), 1)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	_, conv, results := startWatcher(t, dir, false)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.lns"), []byte("x"), 0644))

	r := waitResult(t, results)
	assert.Equal(t, "real.lns", r.File)
	assert.Len(t, conv.converted(), 1)
}

func TestWatcher_ExistingArchives(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.lns"), []byte("x"), 0644))

	_, _, results := startWatcher(t, dir, true)
	r := waitResult(t, results)
	assert.Equal(t, "old.lns", r.File)
}

func TestWatcher_FollowsSymlinkedArchive(t *testing.T) {
	dir := t.TempDir()
	elsewhere := t.TempDir()
	target := filepath.Join(elsewhere, "shared.lns")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0644))
	link := filepath.Join(dir, "shared.lns")
	require.NoError(t, os.Symlink(target, link))

	w, _, results := startWatcher(t, dir, false)
	w.mu.Lock()
	resolved, _ := filepath.EvalSymlinks(elsewhere)
	assert.Equal(t, resolved, w.symlinkTargets[link])
	w.mu.Unlock()

	require.NoError(t, os.WriteFile(target, []byte("v2"), 0644))
	r := waitResult(t, results)
	assert.Equal(t, link, r.Path)
}

func TestWatcher_StartMissingDir(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), &fakeConverter{}, time.Millisecond, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background(), false))
}
