package importer

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
)

// settleDelay gives writers time to finish a file dropped into the watch
// directory before it is ingested.
const settleDelay = 2 * time.Second

// watchedExtensions are the bilingual formats picked up from a watch
// directory.
var watchedExtensions = map[string]bool{
	".xlf":   true,
	".xliff": true,
	".tmx":   true,
}

// Watch monitors dir and invokes handle for every bilingual file created
// or renamed into it. Blocks until the context is cancelled. Handler
// errors are logged, not fatal; the watch keeps running.
func Watch(ctx context.Context, dir string, logger *slog.Logger, handle func(path string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "create watcher", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "watch directory", err).WithPath(dir)
	}
	logger.Info("watching for bilingual files", slog.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if !watchedExtensions[ext] {
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(settleDelay):
			}

			if err := handle(event.Name); err != nil {
				logger.Error("import of watched file failed",
					slog.String("path", event.Name), slog.String("error", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
