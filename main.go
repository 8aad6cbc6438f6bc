package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:          "plexdev-site",
		Short:        "Serve the PlexDev.live landing page and installer script",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(cmd.ErrOrStderr(), debug)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := run(ctx, configPath, logger)
			if err != nil {
				logger.Error("server.failed", "error", err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to an optional YAML configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

// run resolves the configuration, binds the listener and serves until ctx is
// cancelled.
func run(ctx context.Context, configPath string, logger *slog.Logger) error {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("config.dotenv_failed", "error", err)
		}
	}

	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	resolvePort(&config, os.Getenv, logger)

	baseDir, err := executableDir()
	if err != nil {
		return err
	}
	resolveScriptPath(&config, baseDir)

	done := make(chan struct{})
	defer close(done)

	holder := newWAFHolder(nil)
	if config.WAF.Enabled {
		waf, err := initializeWAF(config.WAF.CustomRulesPath)
		if err != nil {
			return err
		}
		holder.Store(waf)
		logger.Info("waf.enabled", "custom_rules_path", config.WAF.CustomRulesPath)

		if config.WAF.CustomRulesPath != "" {
			go watchRulesDirectory(config.WAF.CustomRulesPath, holder, logger, done)
		}
	}

	if config.Script.Watch {
		go watchScript(config.Script.Path, logger, done)
	}

	if addr := config.Debug.PprofListen; addr != "" {
		go func() {
			logger.Info("pprof.listening", "addr", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Error("pprof.failed", "error", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", config.listenAddr())
	if err != nil {
		return fmt.Errorf("error binding %s: %w", config.listenAddr(), err)
	}

	return serve(ctx, ln, newRouter(config, holder, logger), logger)
}

// serve runs an HTTP server on ln until ctx is done, then shuts it down
// gracefully. It takes ownership of ln.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	base := baseURL(ln.Addr())
	logger.Info("server.listening", "url", base+pagePath, "script_url", base+scriptPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("error serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error serving: %w", err)
	}
	return nil
}

// baseURL names the bound address for operators. Wildcard binds are shown as
// localhost.
func baseURL(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return "http://" + addr.String()
	}
	host := "localhost"
	if tcp.IP != nil && !tcp.IP.IsUnspecified() {
		host = tcp.IP.String()
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(tcp.Port))
}
