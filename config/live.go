package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// Live is a config that is re-read on demand. Files are cached until
// Reload; the environment is read on every Get so nothing is evaluated
// ahead of the request that needs it.
type Live struct {
	mu    sync.RWMutex
	paths []string
	files *Config
}

func NewLive(paths ...string) (*Live, error) {
	l := &Live{paths: paths}
	err := l.Reload()
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Live) Reload() error {
	files := &Config{}
	for _, p := range l.paths {
		cf, err := loadConfig(p)
		if err != nil {
			return err
		}
		files.merge(cf)
	}

	l.mu.Lock()
	l.files = files
	l.mu.Unlock()

	return nil
}

// Get returns the environment merged with the cached files. An unparsable
// environment falls back to the files alone.
func (l *Live) Get() *Config {
	c, err := FromEnv()
	if err != nil {
		c = &Config{}
	}

	l.mu.RLock()
	c.merge(l.files)
	l.mu.RUnlock()

	return c
}

// Watch reloads l whenever one of its files changes, until ctx is done.
// Directories are watched instead of files so that editors replacing the
// file are noticed too.
func (l *Live) Watch(ctx context.Context, log logr.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("while creating config watcher: %w", err)
	}

	watched := map[string]struct{}{}
	names := map[string]struct{}{}

	for _, p := range l.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return fmt.Errorf("while resolving %s: %w", p, err)
		}
		names[abs] = struct{}{}

		dir := filepath.Dir(abs)
		if _, found := watched[dir]; found {
			continue
		}
		err = watcher.Add(dir)
		if err != nil {
			log.V(1).Info("not watching config dir", "dir", dir, "reason", err.Error())
			continue
		}
		watched[dir] = struct{}{}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-watcher.Events:
				if !ok {
					return
				}
				if _, found := names[e.Name]; !found {
					continue
				}
				if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				err := l.Reload()
				if err != nil {
					log.Error(err, "while reloading config", "file", e.Name)
					continue
				}
				log.Info("config reloaded", "file", e.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error(err, "config watcher failed")
			}
		}
	}()

	return nil
}
