// Package fsloader is the engine's default external loader: it mirrors
// a directory tree on disk into the shape tree.Tree.SetRawState
// expects, and rereads it whenever the tree changes underneath it.
// Grounded on cmn/config.go's use of jsoniter for config parsing and on
// the fsnotify-driven watch loops elsewhere in the ecosystem pack; this
// package is an external collaborator of pkg/tree, never imported by
// it.
package fsloader

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/karrick/godirwalk"
	"go.uber.org/atomic"

	"github.com/reactree/reactree/pkg/xlog"
)

// Sink receives the fully re-walked tree each time the loader settles
// after a debounce window. Implemented by *tree.Tree in production.
type Sink interface {
	SetRawState(x interface{}) error
}

// Loader walks Dir into a nested map[string]interface{} on Start, then
// watches Dir for changes and re-walks after DebounceInterval of
// quiescence, delivering each settled tree to Sink exactly once.
type Loader struct {
	Dir              string
	DebounceInterval time.Duration
	Sink             Sink

	watcher   *fsWatcher
	rereadReq atomic.Bool
	timer     *time.Timer
	done      chan struct{}
	stopped   chan struct{}
}

const defaultDebounce = 2 * time.Second

// Start performs the initial walk (delivering synchronously so the
// caller can treat a startup failure as fatal), then launches the
// background watcher goroutine.
func (l *Loader) Start() error {
	if l.DebounceInterval <= 0 {
		l.DebounceInterval = defaultDebounce
	}
	l.done = make(chan struct{})
	l.stopped = make(chan struct{})

	tree, err := walkDir(l.Dir)
	if err != nil {
		return err
	}
	if err := l.Sink.SetRawState(tree); err != nil {
		return err
	}

	w, err := newFSWatcher(l.Dir)
	if err != nil {
		return err
	}
	l.watcher = w

	go l.run()
	return nil
}

// Stop tears down the watcher and waits for the background loop to
// exit.
func (l *Loader) Stop() {
	close(l.done)
	<-l.stopped
	l.watcher.close()
}

func (l *Loader) run() {
	defer close(l.stopped)

	var pending <-chan time.Time
	events := l.watcher.events()

	for {
		select {
		case <-l.done:
			return
		case err, ok := <-l.watcher.errors():
			if !ok {
				return
			}
			xlog.Warningf("fsloader: watch error: %v", err)
		case _, ok := <-events:
			if !ok {
				return
			}
			if l.timer == nil {
				l.timer = time.NewTimer(l.DebounceInterval)
			} else {
				if !l.timer.Stop() {
					select {
					case <-l.timer.C:
					default:
					}
				}
				l.timer.Reset(l.DebounceInterval)
			}
			pending = l.timer.C
		case <-pending:
			pending = nil
			l.reread()
		}
	}
}

func (l *Loader) reread() {
	tree, err := walkDir(l.Dir)
	if err != nil {
		xlog.Errorf("fsloader: rescan of %s failed: %v", l.Dir, err)
		return
	}
	if err := l.Sink.SetRawState(tree); err != nil {
		xlog.Errorf("fsloader: setRawState rejected rescan of %s: %v", l.Dir, err)
	}
}

// walkDir builds the nested-mapping representation of root per the
// on-disk configuration contract: directories become mappings keyed by
// child name, ".json" files are parsed, ".txt" files are read as text
// with the suffix stripped, other regular files are read as raw text,
// dotfiles/tilde-suffixed names and non-regular files are skipped.
func walkDir(root string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return out, nil
	}
	if err := populateDir(root, out); err != nil {
		return nil, err
	}
	return out, nil
}

func populateDir(dir string, out map[string]interface{}) error {
	entries, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return err
	}
	entries.Sort()

	for _, ent := range entries {
		name := ent.Name()
		if shouldIgnore(name) {
			continue
		}
		full := filepath.Join(dir, name)

		switch {
		case ent.IsDir():
			sub := map[string]interface{}{}
			if err := populateDir(full, sub); err != nil {
				return err
			}
			out[name] = sub

		case ent.IsRegular():
			key, val, err := loadFile(full, name)
			if err != nil {
				xlog.Warningf("fsloader: skipping %s: %v", full, err)
				continue
			}
			out[key] = val

		default:
			xlog.Warningf("fsloader: ignoring non-regular file %s", full)
		}
	}
	return nil
}

func shouldIgnore(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}

func loadFile(full, name string) (key string, val interface{}, err error) {
	data, err := os.ReadFile(full)
	if err != nil {
		return "", nil, err
	}

	switch {
	case strings.HasSuffix(name, ".json"):
		key = strings.TrimSuffix(name, ".json")
		var v interface{}
		if err := jsoniter.Unmarshal(data, &v); err != nil {
			return "", nil, err
		}
		return key, v, nil

	case strings.HasSuffix(name, ".txt"):
		key = strings.TrimSuffix(name, ".txt")
		return key, string(data), nil

	default:
		return name, string(data), nil
	}
}
