package sso

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*Framework, *FileProviderStore, *ProviderWatcher) {
	t.Helper()
	store, err := NewFileProviderStore(t.TempDir(), nil)
	require.NoError(t, err)
	f := NewFramework(FrameworkConfig{BaseURL: "https://sso.example.com"}, store, nil, nil, nil, nil)

	watcher, err := NewProviderWatcher(f, store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { watcher.watcher.Close() })
	return f, store, watcher
}

func TestProviderWatcher_ReloadsChangedRecord(t *testing.T) {
	f, store, watcher := newTestWatcher(t)

	p := testProvider("p1", "on-disk")
	require.NoError(t, store.Save(p))

	watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(store.Dir(), "p1.json"),
		Op:   fsnotify.Create,
	})

	got, ok := f.GetProvider("p1")
	require.True(t, ok)
	assert.Equal(t, "on-disk", got.Name)

	p.Name = "edited"
	require.NoError(t, store.Save(p))
	watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(store.Dir(), "p1.json"),
		Op:   fsnotify.Write,
	})

	got, _ = f.GetProvider("p1")
	assert.Equal(t, "edited", got.Name)
}

func TestProviderWatcher_RemovesDeletedRecord(t *testing.T) {
	f, store, watcher := newTestWatcher(t)

	p := testProvider("p1", "doomed")
	require.NoError(t, store.Save(p))
	f.ReplaceProvider(p)

	watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(store.Dir(), "p1.json"),
		Op:   fsnotify.Remove,
	})

	_, ok := f.GetProvider("p1")
	assert.False(t, ok)
}

func TestProviderWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	f, store, watcher := newTestWatcher(t)

	watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(store.Dir(), "p1.json.tmp"),
		Op:   fsnotify.Create,
	})
	watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(store.Dir(), "notes.txt"),
		Op:   fsnotify.Create,
	})

	assert.Empty(t, f.ListProviders(false))
}

func TestProviderWatcher_IgnoresMismatchedID(t *testing.T) {
	f, store, watcher := newTestWatcher(t)

	// A record whose embedded ID does not match its filename is suspicious
	// and must not replace a registered provider.
	data := `{"provider_id":"other","name":"x","protocol":"oauth2"}`
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "p1.json"), []byte(data), 0o600))

	watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(store.Dir(), "p1.json"),
		Op:   fsnotify.Write,
	})

	assert.Empty(t, f.ListProviders(false))
}

func TestProviderWatcher_IgnoresUnreadableRecord(t *testing.T) {
	f, store, watcher := newTestWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "p1.json"), []byte("{broken"), 0o600))
	watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(store.Dir(), "p1.json"),
		Op:   fsnotify.Write,
	})

	assert.Empty(t, f.ListProviders(false))
}
