package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/trialmatch/internal/server"
)

var (
	serveAddr    string
	serveBackend string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON HTTP API",
	Long: `Serve exposes parsing and matching over HTTP:

  PUT  /v1/trials/:id                         store eligibility text, parse in background (202)
  GET  /v1/trials/:id                         stored trial
  GET  /v1/trials/:id/rules                   active rule set (?identity= for another parser)
  PUT  /v1/patients/:id                       store a patient profile
  GET  /v1/trials/:id/match/:patient          evaluate (?format=markdown for the checklist)
  GET  /v1/trials/:id/match/:patient/history  recorded evaluations
  POST /v1/patients/:id/match                 evaluate against {"trials": [...]}
  POST /v1/sweep                              queue trials with missing or outdated rules
  GET  /healthz, /metrics

Requests under /v1 need X-API-KEY when server.api_key is set. A cron sweep
(server.sweep_schedule) re-queues trials whose rules are missing or stale.

Example:
  trialmatch serve --addr :8080
  TRIALMATCH_SERVER_API_KEY=secret trialmatch serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address; default from config")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "parser backend for uploaded trials; default from config")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveBackend != "" {
		cfg.Parser.Backend = serveBackend
	}
	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Options{
		Pipeline:      a.pipeline,
		Metrics:       a.metrics,
		Logger:        a.logger,
		APIKey:        cfg.Server.APIKey,
		Workers:       cfg.Concurrency.Workers,
		SweepSchedule: cfg.Server.SweepSchedule,
		Health:        a.store.Ping,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.APIKey == "" {
		a.logger.Warn("API key not set; /v1 is open")
	}
	a.logger.Info("serving",
		zap.String("addr", cfg.Server.Addr),
		zap.String("parser", a.pipeline.Identity()),
		zap.String("sweep", cfg.Server.SweepSchedule))

	if err := srv.Run(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
