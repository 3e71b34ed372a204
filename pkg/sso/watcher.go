package sso

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ProviderWatcher hot-reloads provider records when their files change on
// disk. Edits made by an operator or a config-management agent take effect
// without a restart. Store writes are atomic renames, so every Create or
// Write event observes a complete record.
type ProviderWatcher struct {
	framework *Framework
	store     *FileProviderStore
	watcher   *fsnotify.Watcher
	log       *logrus.Entry
}

// NewProviderWatcher starts watching the store's directory.
func NewProviderWatcher(framework *Framework, store *FileProviderStore, log *logrus.Entry) (*ProviderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := watcher.Add(store.Dir()); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ProviderWatcher{
		framework: framework,
		store:     store,
		watcher:   watcher,
		log:       log.WithField("component", "provider-watcher"),
	}, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *ProviderWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	w.log.WithField("dir", w.store.Dir()).Info("watching provider directory")

	for {
		select {
		case <-ctx.Done():
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
			w.log.WithError(err).Warn("filesystem watcher error")
		}
	}
}

func (w *ProviderWatcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".json") {
		return
	}
	providerID := strings.TrimSuffix(name, ".json")

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		provider, err := w.store.Load(providerID)
		if err != nil {
			w.log.WithError(err).WithField("file", name).Warn("ignoring unreadable provider record")
			return
		}
		if provider.ID != providerID {
			w.log.WithField("file", name).Warn("ignoring provider record whose ID does not match its filename")
			return
		}
		w.framework.ReplaceProvider(provider)
		w.log.WithFields(logrus.Fields{
			"provider_id": provider.ID,
			"provider":    provider.Name,
		}).Info("reloaded provider from disk")

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.framework.RemoveProviderLocal(providerID)
		w.log.WithField("provider_id", providerID).Info("removed provider deleted on disk")
	}
}
