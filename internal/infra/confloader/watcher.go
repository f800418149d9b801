package confloader

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-runs a callback whenever the configuration file changes.
// Editors usually replace the file, so create and rename events on the
// watched path count as changes too.
type Watcher struct {
	fw   *fsnotify.Watcher
	path string
	log  *slog.Logger
	done chan struct{}
}

// Watch starts watching path and invokes onChange per modification.
func Watch(path string, log *slog.Logger, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory: the file itself may be replaced atomically
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:   fw,
		path: filepath.Clean(path),
		log:  log,
		done: make(chan struct{}),
	}
	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func()) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("config file changed", "path", w.path, "op", ev.Op.String())
			onChange()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
