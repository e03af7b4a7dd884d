package fsloader

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// fsWatcher wraps fsnotify.Watcher to watch an entire directory subtree:
// fsnotify only watches the directories you explicitly add, so newly
// created subdirectories are added on the fly as their parent's create
// event arrives.
type fsWatcher struct {
	w    *fsnotify.Watcher
	root string
}

func newFSWatcher(root string) (*fsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &fsWatcher{w: w, root: root}
	if err := fw.addTree(root); err != nil {
		w.Close()
		return nil, err
	}
	return fw, nil
}

func (fw *fsWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.w.Add(path)
		}
		return nil
	})
}

func (fw *fsWatcher) events() <-chan fsnotify.Event {
	out := make(chan fsnotify.Event)
	go func() {
		defer close(out)
		for ev := range fw.w.Events {
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				if ev.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						_ = fw.addTree(ev.Name)
					}
				}
				out <- ev
			}
		}
	}()
	return out
}

func (fw *fsWatcher) errors() <-chan error {
	return fw.w.Errors
}

func (fw *fsWatcher) close() {
	fw.w.Close()
}
