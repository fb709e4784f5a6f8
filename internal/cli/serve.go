package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/salience/internal/attention"
	"github.com/lazypower/salience/internal/config"
	"github.com/lazypower/salience/internal/engine"
	"github.com/lazypower/salience/internal/server"
	"github.com/lazypower/salience/internal/store"
)

var serveNoTimer bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the cycle timer",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoTimer, "no-timer", false, "Only run cycles on request")
}

// newDriver builds the allocator and cycle driver from the loaded config.
func newDriver(cfg config.Config, db *store.DB) (*engine.Engine, error) {
	acfg, err := cfg.AllocatorConfig()
	if err != nil {
		return nil, fmt.Errorf("attention config: %w", err)
	}
	alloc, err := attention.New(acfg)
	if err != nil {
		return nil, fmt.Errorf("create allocator: %w", err)
	}
	eng := engine.New(db, alloc)
	if cfg.Database.HistoryLimit > 0 {
		eng.HistoryLimit = cfg.Database.HistoryLimit
	}
	return eng, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, dbPath, err := openConfiguredDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng, err := newDriver(cfg, db)
	if err != nil {
		return err
	}
	if !serveNoTimer {
		eng.StartCycleTimer()
	}
	defer eng.Stop()

	srv := server.New(db, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "salience serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  mechanism: %s (%.4g cycles/s)\n", cfg.Attention.Mechanism, cfg.Attention.UpdateFrequency)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
