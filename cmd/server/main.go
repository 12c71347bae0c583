// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/playq/internal/api/connect"
	"github.com/osa030/playq/internal/app/filter"
	"github.com/osa030/playq/internal/app/session"
	"github.com/osa030/playq/internal/infra/config"
	"github.com/osa030/playq/internal/infra/library"
	"github.com/osa030/playq/internal/infra/logger"
	"github.com/osa030/playq/internal/infra/mpris"
	"github.com/osa030/playq/internal/infra/store"
)

var (
	app        = kingpin.New("playq-server", "playq playback queue daemon")
	configPath = app.Flag("config", "Path to config file (.yaml or .toml)").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")

	// list-backends command
	listBackendsCmd = app.Command("list-backends", "List available snapshot store backends and exit")

	// scan command
	scanCmd = app.Command("scan", "Scan the configured music directories into the library and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case listFiltersCmd.FullCommand():
		printFilters()
		return
	case listBackendsCmd.FullCommand():
		fmt.Printf("Available backends: %s\n", strings.Join(store.Backends(), ", "))
		return
	}

	// Console logging until the config is loaded
	if err := logger.Init(loggerConfig(config.LogConfig{Output: "stdout", Level: "info"})); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if err := logger.Init(loggerConfig(cfg.Log)); err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}

	if command == scanCmd.FullCommand() {
		if err := scan(cfg); err != nil {
			zlog.Error().Msgf("Scan failed: %v", err)
			os.Exit(1)
		}
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// loggerConfig applies the command-line flags on top of the config.
func loggerConfig(lc config.LogConfig) logger.Config {
	c := logger.Config{
		Output:     lc.Output,
		Level:      lc.Level,
		File:       lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
	}
	// Override with command-line flags if specified
	if *verbose {
		c.Level = "debug"
	}
	if *logfile != "" {
		c.Output = "file"
		c.File = *logfile
	}
	return c
}

// openLibrary opens the catalog and scans the configured directories when
// asked to.
func openLibrary(ctx context.Context, cfg *config.Config, forceScan bool) (*library.Library, error) {
	path, err := cfg.LibraryDatabase()
	if err != nil {
		return nil, err
	}
	lib, err := library.Open(path)
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("Library opened: path=%s", path)

	if (forceScan || cfg.Library.ScanOnStart) && len(cfg.Library.ScanDirs) > 0 {
		start := time.Now()
		stats, err := lib.Scan(ctx, cfg.Library.ScanDirs...)
		if err != nil {
			_ = lib.Close()
			return nil, errors.Wrap(err, "library scan failed")
		}
		zlog.Info().Msgf("Library scanned in %v: added=%d updated=%d removed=%d unchanged=%d",
			time.Since(start).Round(time.Millisecond), stats.Added, stats.Updated, stats.Removed, stats.Unchanged)
	}
	return lib, nil
}

// scan runs the scan command.
func scan(cfg *config.Config) error {
	if len(cfg.Library.ScanDirs) == 0 {
		return errors.New("library.scan_dirs is empty")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lib, err := openLibrary(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer lib.Close()

	count, err := lib.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Library holds %d tracks\n", count)
	return nil
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Open the snapshot store
	kv, err := store.Open(cfg.Store.Backend, cfg.Store.Settings)
	if err != nil {
		return err
	}
	snapshots := store.New(kv)
	defer func() {
		if err := snapshots.Close(); err != nil {
			zlog.Error().Msgf("Failed to close store: %v", err)
		}
	}()
	zlog.Info().Msgf("Snapshot store: backend=%s", cfg.Store.Backend)

	// Open the song catalog
	lib, err := openLibrary(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer lib.Close()

	// Create session manager
	sessionMgr, err := session.NewManager(cfg, lib, snapshots)
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	if err := sessionMgr.Start(ctx); err != nil {
		sessionMgr.Close()
		return errors.Wrap(err, "failed to start session")
	}

	// Register the desktop media session
	if cfg.MPRIS.Enabled {
		adapter, err := mpris.New(cfg.MPRIS.Name, sessionMgr.Playback(), sessionMgr)
		if err != nil {
			zlog.Warn().Msgf("MPRIS disabled: %v", err)
		} else {
			defer func() {
				if err := adapter.Close(); err != nil {
					zlog.Warn().Msgf("Failed to close MPRIS adapter: %v", err)
				}
			}()
		}
	}

	// Create HTTP mux
	mux := http.NewServeMux()
	path, handler := apiconnect.NewPlayerServiceHandler(apiconnect.NewPlayerService(sessionMgr), cfg.Admin.Token)
	mux.Handle(path, handler)

	// Create server with h2c (HTTP/2 cleartext) support
	serverAddr := cfg.Server.Addr
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		// Signal that we're about to start listening
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")
	defer executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		serveErr = errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to save the snapshot and end streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return serveErr
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.Names() {
		f, err := filter.New(name, filter.Deps{})
		if err != nil {
			continue
		}
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
