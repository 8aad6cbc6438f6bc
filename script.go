package main

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

const scriptReadFailedBody = "Error serving installer script"

// scriptHandler serves the installer script from a fixed path. The file is
// read in full on every request so edits on disk show up immediately, and a
// failed read never leaves a partial body behind.
func scriptHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(path)
		if err != nil {
			requestLogger(r).Error("script.read_failed", "path", path, "error", err)
			http.Error(w, scriptReadFailedBody, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", `inline; filename="install.sh"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// watchScript logs changes to the script file until done is closed. The
// parent directory is watched so that editors replacing the file by rename
// are still seen.
func watchScript(path string, logger *slog.Logger, done <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("script.watch_failed", "error", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logger.Error("script.watch_failed", "path", dir, "error", err)
		return
	}

	if _, err := os.Stat(path); err != nil {
		logger.Warn("script.missing", "path", path, "error", err)
	}
	logger.Info("script.watching", "path", path)

	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				logger.Warn("script.removed", "path", path)
			case event.Has(fsnotify.Create):
				logger.Info("script.created", "path", path)
			case event.Has(fsnotify.Write):
				logger.Info("script.updated", "path", path)
			case event.Has(fsnotify.Chmod):
				logger.Debug("script.chmod", "path", path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("script.watch_error", "error", err)
		}
	}
}
