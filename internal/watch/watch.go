// Package watch ingests local filesystem changes as file lifecycle
// events.
//
// fsnotify reports a rename as a Rename on the old name followed by a
// Create on the new one. The watcher pairs the two into a single RENAME so
// tags follow the file; a Rename with no Create inside the pairing window
// (the file left the watched tree) becomes a DELETE.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/metad/internal/store"
)

// DefaultRenameWindow is how long a Rename waits for its Create.
const DefaultRenameWindow = 250 * time.Millisecond

// Store is the subset of the metadata store the watcher writes to.
type Store interface {
	ApplyLifecycle(ctx context.Context, lc store.Lifecycle) error
}

// Watcher applies filesystem events under a set of directories.
type Watcher struct {
	store        Store
	roots        []string
	renameWindow time.Duration
	logger       *slog.Logger

	fw      *fsnotify.Watcher
	pending string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithRenameWindow overrides DefaultRenameWindow.
func WithRenameWindow(d time.Duration) Option {
	return func(w *Watcher) {
		w.renameWindow = d
	}
}

// New creates a Watcher over roots. Directories are watched recursively.
func New(st Store, roots []string, opts ...Option) *Watcher {
	w := &Watcher{
		store:        st,
		roots:        roots,
		renameWindow: DefaultRenameWindow,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled and returns ctx.Err(). Store errors
// are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()
	w.fw = fw

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}
	w.logger.Info("watching directories", "roots", w.roots)

	var (
		timer   *time.Timer
		expired <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, expired = nil, nil
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return ctx.Err()
			}
			hadPending := w.pending != ""
			w.apply(ctx, w.translate(ev))
			switch {
			case w.pending == "":
				stopTimer()
			case !hadPending || ev.Has(fsnotify.Rename):
				stopTimer()
				timer = time.NewTimer(w.renameWindow)
				expired = timer.C
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return ctx.Err()
			}
			w.logger.Warn("watch error", "error", err)

		case <-expired:
			timer, expired = nil, nil
			w.apply(ctx, w.expire())
		}
	}
}

// translate maps one fsnotify event to lifecycle mutations, updating the
// pending rename.
func (w *Watcher) translate(ev fsnotify.Event) []store.Lifecycle {
	var out []store.Lifecycle

	switch {
	case ev.Has(fsnotify.Rename):
		out = append(out, w.expire()...)
		w.pending = ev.Name

	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch new directory", "path", ev.Name, "error", err)
			}
			return w.expire()
		}
		if w.pending != "" {
			out = append(out, store.Lifecycle{Op: store.OpRename, Path: w.pending, Target: ev.Name})
			w.pending = ""
			return out
		}
		out = append(out, store.Lifecycle{Op: store.OpCreate, Path: ev.Name, Attrs: attributes(info)})

	case ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			return nil
		}
		out = append(out, store.Lifecycle{Op: store.OpWrite, Path: ev.Name, Attrs: attributes(info)})

	case ev.Has(fsnotify.Remove):
		if w.pending == ev.Name {
			w.pending = ""
		}
		out = append(out, store.Lifecycle{Op: store.OpDelete, Path: ev.Name})
	}
	return out
}

// expire turns an unpaired rename into a delete.
func (w *Watcher) expire() []store.Lifecycle {
	if w.pending == "" {
		return nil
	}
	lc := store.Lifecycle{Op: store.OpDelete, Path: w.pending, Extra: "renamed out of watched tree"}
	w.pending = ""
	return []store.Lifecycle{lc}
}

func (w *Watcher) apply(ctx context.Context, lcs []store.Lifecycle) {
	for _, lc := range lcs {
		if err := w.store.ApplyLifecycle(ctx, lc); err != nil {
			w.logger.Error("apply filesystem event",
				"op", lc.Op,
				"path", lc.Path,
				"error", err)
			continue
		}
		w.logger.Debug("filesystem event applied", "op", lc.Op, "path", lc.Path, "target", lc.Target)
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != root {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fw.Add(path)
	})
}

func attributes(info os.FileInfo) store.Attributes {
	if info == nil {
		return store.Attributes{}
	}
	return store.Attributes{ModifiedTime: info.ModTime().Unix()}
}
