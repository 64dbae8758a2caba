package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadDelay is how long Watch waits for a burst of write events to settle
// before re-reading the file.
const ReloadDelay = 150 * time.Millisecond

// ErrEmptyConfig is returned when a config file has no content, which is
// what a reader sees between an editor's truncate and its write.
var ErrEmptyConfig = errors.New("config file is empty")

// Watch reloads the workspace config once writes to the file settle and hands
// each valid result to onChange. Empty or invalid contents are logged and
// skipped, and contents identical to the last reported config are not
// reported again. Watch blocks until ctx is done.
func Watch(ctx context.Context, workspace string, log *zap.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	path := Path(workspace)
	// Watch the directory so editors that replace the file are still seen.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	var last []byte

	settle := time.NewTimer(ReloadDelay)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			settle.Reset(ReloadDelay)
		case <-settle.C:
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warn("config reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}
			cfg, err := fromNonEmpty(data)
			if err != nil {
				log.Warn("config reload rejected", zap.String("path", path), zap.Error(err))
				continue
			}
			last = data
			log.Info("config reloaded", zap.String("path", path))
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func fromNonEmpty(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyConfig
	}
	return FromYAML(data)
}
