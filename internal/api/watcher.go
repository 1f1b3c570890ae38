package api

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/zring/cfbmodel/internal/logging"
)

// DefaultReloadDelay is how long the watcher waits for writes to settle.
const DefaultReloadDelay = 250 * time.Millisecond

// ModelWatcher calls reload when the model file is written or replaced.
// The parent directory is watched so atomic renames are seen.
type ModelWatcher struct {
	path   string
	reload func() error
	delay  time.Duration
	logger *logrus.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewModelWatcher creates a watcher for path.
func NewModelWatcher(path string, reload func() error, logger *logrus.Logger) *ModelWatcher {
	return &ModelWatcher{
		path:   filepath.Clean(path),
		reload: reload,
		delay:  DefaultReloadDelay,
		logger: logging.OrNop(logger),
		done:   make(chan struct{}),
	}
}

// Start begins watching.
func (mw *ModelWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create model watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(mw.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(mw.path), err)
	}
	mw.watcher = w

	mw.wg.Add(1)
	go mw.loop()
	mw.logger.WithField("path", mw.path).Info("Watching model file")
	return nil
}

func (mw *ModelWatcher) loop() {
	defer mw.wg.Done()

	var pending <-chan time.Time
	for {
		select {
		case <-mw.done:
			return

		case ev, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != mw.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				pending = time.After(mw.delay)
			}

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.WithError(err).Warn("Model watcher error")

		case <-pending:
			pending = nil
			if err := mw.reload(); err != nil {
				mw.logger.WithError(err).Error("Failed to reload model")
			}
		}
	}
}

// Close stops watching and waits for the loop to exit.
func (mw *ModelWatcher) Close() error {
	if mw.watcher == nil {
		return nil
	}
	close(mw.done)
	err := mw.watcher.Close()
	mw.wg.Wait()
	mw.watcher = nil
	return err
}
