// Package server exposes parsing and matching over a JSON HTTP API. Trial
// uploads are parsed out of band on a worker pool; a cron sweep re-queues
// trials whose rules are missing or older than their text.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ppiankov/trialmatch/internal/metrics"
	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/pipeline"
	"github.com/ppiankov/trialmatch/internal/worker"
)

// Options configures a Server. Pipeline is required.
type Options struct {
	Pipeline      *pipeline.Pipeline
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	APIKey        string                          // Empty disables X-API-KEY checks
	Workers       int                             // Parse pool size
	QueueDepth    int                             // Parse queue capacity
	SweepSchedule string                          // Cron spec; empty disables the sweep
	Health        func(ctx context.Context) error // Readiness probe, e.g. store ping
}

// Server is the HTTP API plus its parse queue
type Server struct {
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	logger   *zap.Logger
	apiKey   string
	health   func(ctx context.Context) error
	renderer *pipeline.Renderer

	router *gin.Engine
	pool   *worker.Pool
	cron   *cron.Cron
	done   chan struct{}

	mu     sync.Mutex
	queued map[string]bool // trial id -> needs another parse after the running one
}

// New builds the server. Call Start before serving.
func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("server requires a pipeline")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = opts.Workers * 16
	}

	s := &Server{
		pipeline: opts.Pipeline,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		apiKey:   opts.APIKey,
		health:   opts.Health,
		renderer: pipeline.NewRenderer(false),
		pool:     worker.NewPoolWithQueue(opts.Workers, opts.QueueDepth),
		done:     make(chan struct{}),
		queued:   make(map[string]bool),
	}

	if opts.SweepSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(opts.SweepSchedule, s.runSweep); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", opts.SweepSchedule, err)
		}
	}

	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the parse workers, the result drain and the sweep schedule
func (s *Server) Start() {
	s.pool.Start()
	go s.drain()
	if s.cron != nil {
		s.cron.Start()
	}
}

// Close stops the sweep and waits for queued parses to finish
func (s *Server) Close() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.pool.Close()
	<-s.done
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.Start()
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	s.logger.Info("server stopped")
	return err
}

// Sweep queues every trial without a current rule set from the configured
// backend and returns how many were queued
func (s *Server) Sweep(ctx context.Context) (int, error) {
	trials, err := s.pipeline.Pending(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range trials {
		if s.enqueue(t.ID) {
			n++
		}
	}
	return n, nil
}

func (s *Server) runSweep() {
	s.logger.Debug("running parse sweep")
	n, err := s.Sweep(context.Background())
	if err != nil {
		s.logger.Error("parse sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("parse sweep queued trials", zap.Int("queued", n))
	}
}

// enqueue schedules a parse of the trial's stored text. A trial already in
// the queue is marked for one more parse once the current one finishes.
// It reports false when the queue is full; the sweep picks such trials up.
func (s *Server) enqueue(trialID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queued[trialID]; ok {
		s.queued[trialID] = true
		return true
	}
	if !s.pool.TrySubmit(s.job(trialID)) {
		s.logger.Warn("parse queue full", zap.String("trial", trialID))
		return false
	}
	s.queued[trialID] = false
	s.metrics.QueueDepth(len(s.queued))
	return true
}

func (s *Server) job(trialID string) *worker.ParseJob {
	return &worker.ParseJob{
		Trial:  worker.Trial{ID: trialID},
		Parser: storedText{s.pipeline},
	}
}

// drain consumes parse results until the pool closes
func (s *Server) drain() {
	defer close(s.done)
	for r := range s.pool.Results() {
		res, ok := r.(*worker.ParseResult)
		if !ok {
			continue
		}
		if res.Error != nil {
			s.logger.Warn("queued parse failed", zap.String("trial", res.TrialID), zap.Error(res.Error))
		}
		s.finish(res.TrialID)
	}
}

func (s *Server) finish(trialID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if again := s.queued[trialID]; again {
		s.queued[trialID] = false
		// Submit may block on a full queue; workers must keep draining meanwhile
		go s.pool.Submit(s.job(trialID))
		return
	}
	delete(s.queued, trialID)
	s.metrics.QueueDepth(len(s.queued))
}

// storedText parses whatever text the trial holds when the job runs, so a
// job queued before an update never restores the older text
type storedText struct {
	p *pipeline.Pipeline
}

func (t storedText) ParseTrial(ctx context.Context, trialID, _ string) (*model.RuleSet, error) {
	trial, err := t.p.Trial(ctx, trialID)
	if err != nil {
		return nil, err
	}
	return t.p.ParseTrial(ctx, trialID, trial.Text)
}
