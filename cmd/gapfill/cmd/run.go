package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/gapfill/broker/trading212"
	"github.com/rustyeddy/gapfill/config"
	"github.com/rustyeddy/gapfill/engine"
	"github.com/rustyeddy/gapfill/journal"
	"github.com/rustyeddy/gapfill/marketdata/alpaca"
	"github.com/rustyeddy/gapfill/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot against the live brokerage",
	Long: `Run the gap-fill bot continuously using settings from a configuration file.

The bot waits for the market to open, performs one scan-and-monitor pass per
session, closes residual positions, and then idles until the next trading
day. A session that fails is retried after a cooldown; stop the process with
SIGINT or SIGTERM.

Example:
  gapfill run -f gapfill.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	clock, err := session.NewClock(cfg.Session)
	if err != nil {
		return fmt.Errorf("session clock: %w", err)
	}

	brk, err := trading212.NewClient(cfg.Broker.BaseURL, creds.APIKey, creds.APISecret)
	if err != nil {
		return err
	}

	jnl, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jnl.Close()

	eng, err := engine.New(cfg, clock, brk, alpaca.NewProvider(), jnl)
	if err != nil {
		return err
	}

	banner(cfg, creds)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = eng.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Printf("[SHUTDOWN] signal received, exiting")
		return nil
	}
	return err
}

// banner echoes the effective configuration at startup so a session's
// parameters are always on record. The API key stays masked.
func banner(cfg *config.Config, creds config.Credentials) {
	fmt.Printf("gapfill starting\n")
	fmt.Printf("  Broker:   %s (key %s)\n", cfg.Broker.BaseURL, creds.Masked())
	fmt.Printf("  Universe: %s\n", strings.Join(cfg.Strategy.Universe, " "))
	fmt.Printf("  Budget:   %.2f %s total, %.2f per instrument\n",
		cfg.Strategy.TotalBudget, cfg.Broker.Currency,
		cfg.Strategy.TotalBudget/float64(len(cfg.Strategy.Universe)))
	fmt.Printf("  Gap:      [%.2f%%, %.2f%%], RSI(%d) <= %.0f\n",
		cfg.Strategy.MinGap*100, cfg.Strategy.MaxGap*100,
		cfg.Strategy.RSIPeriod, cfg.Strategy.RSIMax)
	fmt.Printf("  Session:  %s %s-%s, monitor every %s up to %s\n",
		cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close,
		cfg.Strategy.MonitorInterval, cfg.Strategy.MonitorCeiling)
	fmt.Printf("  Journal:  %s\n", cfg.Journal.Type)
	fmt.Println()
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	if jc.Type == "sqlite" {
		return journal.NewSQLite(jc.DBPath)
	}
	return journal.Noop{}, nil
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("[METRICS] serving on :%d", port)
	if err := srv.ListenAndServe(); err != nil {
		log.Printf("[METRICS] server stopped: %v", err)
	}
}
