package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	coreset "github.com/corazawaf/coraza-coreruleset/v4"
	"github.com/corazawaf/coraza/v3"
	"github.com/corazawaf/coraza/v3/debuglog"
	"github.com/fsnotify/fsnotify"
)

const maxRequestBody = 1 << 20

// wafHolder lets the rules watcher swap the WAF while requests are in flight.
type wafHolder struct {
	current atomic.Pointer[coraza.WAF]
}

func newWAFHolder(waf coraza.WAF) *wafHolder {
	h := &wafHolder{}
	if waf != nil {
		h.Store(waf)
	}
	return h
}

func (h *wafHolder) Load() coraza.WAF {
	if h == nil {
		return nil
	}
	if p := h.current.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *wafHolder) Store(waf coraza.WAF) {
	h.current.Store(&waf)
}

// initializeWAF sets up the Coraza WAF with core rule set and custom rules
func initializeWAF(customRulesPath string) (coraza.WAF, error) {
	wafConfig := coraza.NewWAFConfig().
		WithDebugLogger(debuglog.Default()).
		WithRequestBodyAccess().
		WithRequestBodyLimit(maxRequestBody)

	var directives strings.Builder
	directives.WriteString(`
	Include @coraza.conf-recommended
	Include @crs-setup.conf.example
	Include @owasp_crs/*.conf
	SecRuleEngine On
	`)

	// Includes resolve inside the embedded rule set, so custom rules are
	// inlined rather than included by path.
	if customRulesPath != "" {
		files, err := filepath.Glob(filepath.Join(customRulesPath, "*.conf"))
		if err != nil {
			return nil, fmt.Errorf("error listing custom rules: %w", err)
		}
		for _, file := range files {
			rules, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("error reading custom rules %s: %w", file, err)
			}
			directives.WriteString("\n")
			directives.Write(rules)
			directives.WriteString("\n")
		}
	}

	wafConfig = wafConfig.WithDirectives(directives.String()).WithRootFS(coreset.FS)

	waf, err := coraza.NewWAF(wafConfig)
	if err != nil {
		return nil, fmt.Errorf("error initializing WAF: %w", err)
	}

	return waf, nil
}

// watchRulesDirectory rebuilds the WAF whenever a custom rule file changes.
// A failed rebuild keeps the previous WAF in place. It returns when done is
// closed or the watcher fails.
func watchRulesDirectory(rulesPath string, holder *wafHolder, logger *slog.Logger, done <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("waf.watch_failed", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(rulesPath); err != nil {
		logger.Error("waf.watch_failed", "path", rulesPath, "error", err)
		return
	}

	logger.Info("waf.watching", "path", rulesPath)

	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Ext(event.Name) != ".conf" {
				continue
			}

			logger.Info("waf.rules_changed", "file", event.Name)
			newWAF, err := initializeWAF(rulesPath)
			if err != nil {
				logger.Error("waf.reload_failed", "error", err)
				continue
			}
			holder.Store(newWAF)
			logger.Info("waf.reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("waf.watch_error", "error", err)
		}
	}
}

// filtered runs the request phases of the WAF before next. With no WAF
// loaded it passes requests straight through.
func filtered(holder *wafHolder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		waf := holder.Load()
		if waf == nil {
			next.ServeHTTP(w, r)
			return
		}

		logger := requestLogger(r)
		tx := waf.NewTransaction()
		defer func() {
			tx.ProcessLogging()
			if err := tx.Close(); err != nil {
				logger.Debug("waf.close_failed", "error", err)
			}
		}()

		clientIP, clientPort := splitHostPort(r.RemoteAddr, 0)
		defaultPort := 80
		if r.TLS != nil {
			defaultPort = 443
		}
		serverIP, serverPort := splitHostPort(r.Host, defaultPort)
		tx.ProcessConnection(clientIP, clientPort, serverIP, serverPort)

		tx.ProcessURI(r.URL.String(), r.Method, r.Proto)
		for name, values := range r.Header {
			for _, value := range values {
				tx.AddRequestHeader(name, value)
			}
		}
		if r.Host != "" {
			tx.AddRequestHeader("Host", r.Host)
		}

		if it := tx.ProcessRequestHeaders(); it != nil {
			logger.Warn("waf.blocked", "phase", "headers", "rule", it.RuleID, "status", it.Status)
			http.Error(w, "Request blocked", blockStatus(it.Status))
			return
		}

		if r.Body != nil && r.ContentLength != 0 {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
			if err != nil {
				logger.Warn("waf.body_read_failed", "error", err)
				http.Error(w, "Bad request", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			if _, _, err := tx.WriteRequestBody(body); err != nil {
				logger.Warn("waf.body_write_failed", "error", err)
			}
		}

		it, err := tx.ProcessRequestBody()
		if err != nil {
			logger.Warn("waf.body_process_failed", "error", err)
		}
		if it != nil {
			logger.Warn("waf.blocked", "phase", "body", "rule", it.RuleID, "status", it.Status)
			http.Error(w, "Request blocked", blockStatus(it.Status))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func blockStatus(status int) int {
	if status < 400 {
		return http.StatusForbidden
	}
	return status
}

func splitHostPort(hostport string, fallbackPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, fallbackPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, fallbackPort
	}
	return host, port
}
