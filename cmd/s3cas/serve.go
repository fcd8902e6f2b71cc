package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/threefoldtech/s3-cas/pkg/log"
	"github.com/threefoldtech/s3-cas/pkg/metrics"
	"github.com/threefoldtech/s3-cas/pkg/router"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the metastore and block store and serve metrics/health endpoints",
	Long: `serve opens the shared and per-tenant metastores and the block
root, registers health components, and exposes /metrics, /health, /ready,
and /live. The S3 wire protocol dispatcher that would sit in front of
pkg/objectstore is out of scope for this repo (see DESIGN.md); serve is
the process that keeps the storage engine open for whatever dispatcher
is wired in front of it.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to server YAML config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadServerConfig(configPath)
	if err != nil {
		return err
	}

	durability, err := cfg.durability()
	if err != nil {
		return err
	}

	var factory router.MetastoreFactory
	if cfg.Transactional {
		factory = router.AtomicFactory(cfg.InlineThreshold, durability)
	} else {
		factory = router.CompensatedFactory(cfg.InlineThreshold, durability)
	}

	rt, err := router.New(cfg.MetaRoot, cfg.BlockRoot, factory)
	if err != nil {
		return fmt.Errorf("open router: %w", err)
	}

	log.Logger.Info().Str("meta_root", cfg.MetaRoot).Str("block_root", cfg.BlockRoot).Msg("storage engine opened")

	metrics.SetVersion(Version)
	metrics.RegisterComponent("metastore", true, "opened")
	metrics.RegisterComponent("router", true, "ready")
	metrics.RegisterComponent("blockstore", true, "ready")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	errCh := make(chan error, 1)
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	fmt.Printf("Metrics endpoint: http://%s/metrics\n", cfg.MetricsAddr)
	fmt.Printf("Health endpoints:\n")
	fmt.Printf("  - Health check: http://%s/health\n", cfg.MetricsAddr)
	fmt.Printf("  - Readiness:    http://%s/ready\n", cfg.MetricsAddr)
	fmt.Printf("  - Liveness:     http://%s/live\n", cfg.MetricsAddr)
	fmt.Println()
	fmt.Println("s3cas storage engine is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
	}

	if err := rt.Close(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Println("Shutdown complete")
	return nil
}
