package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/candelahq/trellis/config"
	"github.com/candelahq/trellis/engine"
	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/scheduler"
	"github.com/candelahq/trellis/seed"
	"github.com/candelahq/trellis/server"
	"github.com/candelahq/trellis/store"
	"github.com/candelahq/trellis/version"
)

// ServeCmd runs the trellis daemon: HTTP API, WebSocket event stream and
// the job scheduler, all over one SQLite database.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the API server and job scheduler",
	Long: `Start the trellis daemon in the foreground.

The daemon serves the HTTP API and WebSocket event stream, runs the
scheduler poller that fires due nodes, and watches the config file so
scheduler settings apply without a restart. Stop with Ctrl+C; a second
Ctrl+C forces immediate exit.`,
	RunE: runServe,
}

var (
	serveDBPath string
	serveNoSeed bool
)

func init() {
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
	ServeCmd.Flags().BoolVar(&serveNoSeed, "no-seed", false, "Skip installing the bundled demo flows on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	if cfg.Log.JSON && !jsonLogs {
		if err := logger.Initialize(true); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}

	dbPath := serveDBPath
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	database, err := openDatabase(cmd, dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	s := store.New(database, logger.ComponentLogger("store"))
	eng := engine.New(s, engine.SystemClock{}, logger.ComponentLogger("engine"))

	if !serveNoSeed {
		if err := seed.EnsureDemoProjects(ctx, s); err != nil {
			return errors.Wrap(err, "failed to install demo flows")
		}
	}

	poller := scheduler.New(s, eng, engine.SystemClock{}, scheduler.Config{
		Interval:          cfg.Scheduler.PollInterval(),
		BatchSize:         cfg.Scheduler.BatchSize,
		MaxSendsPerMinute: cfg.Scheduler.MaxSendsPerMinute,
	}, logger.ComponentLogger("scheduler"))

	srv := server.New(server.Options{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, database, s, eng, logger.ComponentLogger("server"))

	watcher := startConfigWatcher(cmd, poller)
	if watcher != nil {
		defer watcher.Stop()
	}

	poller.Start()
	srv.Start()

	printServeBanner(cfg, dbPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		poller.Stop()
		shutdownDone <- err
	}()

	select {
	case err := <-shutdownDone:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("Trellis stopped cleanly")
		return nil
	case <-sigChan:
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
		return nil // unreachable
	}
}

// startConfigWatcher watches the active config file so scheduler settings
// apply live. Returns nil when no config file exists; defaults plus
// environment still apply, they just cannot change at runtime.
func startConfigWatcher(cmd *cobra.Command, poller *scheduler.Poller) *config.ConfigWatcher {
	log := logger.ComponentLogger("config")

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		for _, candidate := range []string{"trellis.toml", config.DefaultConfigPath()} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		log.Debugw("No config file found, live reload disabled")
		return nil
	}

	watcher, err := config.NewConfigWatcher(path)
	if err != nil {
		log.Warnw("Failed to watch config file, live reload disabled",
			"path", path, "error", err)
		return nil
	}

	watcher.OnReload(func(cfg *config.Config) error {
		poller.SetInterval(cfg.Scheduler.PollInterval())
		poller.SetMaxSendsPerMinute(cfg.Scheduler.MaxSendsPerMinute)
		return nil
	})
	watcher.Start()
	config.SetGlobalWatcher(watcher)

	log.Infow("Watching config file for changes", "path", path)
	return watcher
}

// printServeBanner prints the startup summary for operators at a terminal
func printServeBanner(cfg *config.Config, dbPath string) {
	info := version.Get()

	pterm.DefaultSection.Println("Trellis " + info.Version)
	pterm.DefaultBulletList.WithItems([]pterm.BulletListItem{
		{Level: 0, Text: fmt.Sprintf("API:       http://%s:%d", cfg.Server.Host, cfg.Server.Port)},
		{Level: 0, Text: fmt.Sprintf("Events:    ws://%s:%d/ws/participants/{id}", cfg.Server.Host, cfg.Server.Port)},
		{Level: 0, Text: "Database:  " + dbPath},
		{Level: 0, Text: fmt.Sprintf("Scheduler: every %s, batch %d", cfg.Scheduler.PollInterval(), cfg.Scheduler.BatchSize)},
	}).Render()
	pterm.Info.Println("Press Ctrl+C to stop")
}
