package conf

import (
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dosco/mongodoc/core"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Registry holds the schemas of a schema file by name. Watch reloads them
// when the file changes; a file that fails to parse keeps the previous set.
type Registry struct {
	fs   afero.Fs
	path string
	log  *zap.Logger

	entries  atomic.Pointer[map[string]*Entry]
	reloadMu sync.Mutex
	onReload []func(map[string]*Entry)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry reads the schema file at path. A nil log discards output.
func NewRegistry(fs afero.Fs, path string, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		fs:   fs,
		path: filepath.Clean(path),
		log:  log.Named("registry"),
		done: make(chan struct{}),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadRegistry opens the schema file named by c.SchemaFile on the OS
// filesystem.
func LoadRegistry(c *Config, log *zap.Logger) (*Registry, error) {
	return NewRegistry(afero.NewOsFs(), c.AbsolutePath(c.SchemaFile), log)
}

// Schema returns the schema declared as name.
func (r *Registry) Schema(name string) (*core.Schema, bool) {
	e, ok := r.Entry(name)
	if !ok {
		return nil, false
	}
	return e.Schema, true
}

// Entry returns the schema declared as name with its indexes.
func (r *Registry) Entry(name string) (*Entry, bool) {
	e, ok := (*r.entries.Load())[name]
	return e, ok
}

// Names returns the declared schema names, sorted.
func (r *Registry) Names() []string {
	entries := *r.entries.Load()
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// OnReload registers fn to be called with the new schemas after every
// successful reload.
func (r *Registry) OnReload(fn func(map[string]*Entry)) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Reload reads the schema file again.
func (r *Registry) Reload() error {
	entries, err := ReadSchemas(r.fs, r.path)
	if err != nil {
		return err
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	r.entries.Store(&entries)
	for _, fn := range r.onReload {
		fn(entries)
	}
	return nil
}

// Watch starts reloading the schema file when it changes on disk. The
// directory is watched since editors often replace files on save.
func (r *Registry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "schema watcher")
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close() //nolint:errcheck
		return errors.Wrap(err, "schema watcher")
	}
	r.watcher = w

	go r.watch(w)
	return nil
}

func (r *Registry) watch(w *fsnotify.Watcher) {
	for {
		select {
		case <-r.done:
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.log.Warn("schema reload failed, keeping previous schemas",
					zap.String("file", r.path), zap.Error(err))
				continue
			}
			r.log.Info("schema change detected, reloaded",
				zap.String("file", r.path), zap.Strings("schemas", r.Names()))

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log.Error("schema watcher", zap.Error(err))
		}
	}
}

// Close stops watching.
func (r *Registry) Close() error {
	select {
	case <-r.done:
		return nil
	default:
		close(r.done)
	}
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
