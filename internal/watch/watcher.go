// Package watch implements an fsnotify-backed recursive directory watcher,
// filtered by the same doublestar glob patterns internal/config uses for
// exclusion.
package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Op identifies the kind of file-system change an Event carries.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpRemove
)

// Event is one filtered, de-classified file-system change.
type Event struct {
	Path string
	Op   Op
}

// Watcher recursively monitors root for file changes, dropping any path
// that matches one of the exclude globs, and delivers events to a single
// channel.
type Watcher struct {
	fsw     *fsnotify.Watcher
	exclude []string
	root    string

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watcher rooted at root, filtering out any path matching
// one of the exclude glob patterns (relative to root).
func New(root string, exclude []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fsw:     fsw,
		exclude: exclude,
		root:    root,
		events:  make(chan Event, 256),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Events returns the channel events are delivered on. It is closed after
// Stop returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start adds watches for every directory under root not excluded, then
// begins delivering events.
func (w *Watcher) Start() error {
	if err := w.addWatches(w.root); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop cancels the watcher goroutine, closes the underlying fsnotify
// watcher, and closes the event channel.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	err := w.fsw.Close()
	close(w.events)
	return err
}

func (w *Watcher) addWatches(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree: skip, don't fail the whole walk
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Printf("watch: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, strings.TrimSuffix(pattern, "/**")+"/"+rel); matched {
			return true
		}
	}
	return false
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watch: watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.excluded(ev.Name) {
		return
	}

	info, statErr := os.Stat(ev.Name)
	if statErr == nil && info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			if err := w.fsw.Add(ev.Name); err != nil {
				log.Printf("watch: failed to add watch for new directory %s: %v", ev.Name, err)
			}
		}
		return
	}

	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		op = OpRemove
	default:
		return
	}

	select {
	case w.events <- Event{Path: ev.Name, Op: op}:
	case <-w.ctx.Done():
	}
}
