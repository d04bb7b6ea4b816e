package main

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long watch waits for a burst of events to end before
// re-running.
const settle = 100 * time.Millisecond

// watch re-runs the analysis whenever one of the files changes. The
// parent directories are watched, since editors often replace files by
// renaming a temporary over them.
func watch(cfg *config, files []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := map[string]bool{}
	if err := addAll(w, watched, files); err != nil {
		return err
	}
	log.Printf("shaderdbg: watching %d files", len(watched))

	var timer <-chan time.Time
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer = time.After(settle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("shaderdbg: watch: %v", err)
		case <-timer:
			timer = nil
			sources, err := run(cfg)
			if err != nil {
				log.Printf("shaderdbg: %v", err)
			}
			// A reload may reference new shader files.
			if err := addAll(w, watched, sources); err != nil {
				log.Printf("shaderdbg: watch: %v", err)
			}
		}
	}
}

// addAll watches the directories of files not yet in watched.
func addAll(w *fsnotify.Watcher, watched map[string]bool, files []string) error {
	for _, f := range files {
		f, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		if watched[f] {
			continue
		}
		dir := filepath.Dir(f)
		if !watchesDir(watched, dir) {
			if err := w.Add(dir); err != nil {
				return err
			}
		}
		watched[f] = true
	}
	return nil
}

func watchesDir(watched map[string]bool, dir string) bool {
	for f := range watched {
		if filepath.Dir(f) == dir {
			return true
		}
	}
	return false
}
