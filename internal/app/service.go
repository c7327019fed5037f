// Package app composes alertdesk runtime components and owns the process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"alertdesk/internal/clock"
	"alertdesk/internal/config"
	"alertdesk/internal/dashboard"
	"alertdesk/internal/gate"
	"alertdesk/internal/httpapi"
	"alertdesk/internal/ingest"
	"alertdesk/internal/logging"
	"alertdesk/internal/normalize"
	"alertdesk/internal/notify"
	"alertdesk/internal/store"
	"alertdesk/internal/upstream"
)

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable alertdesk service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	store     store.Store
	ingestor  *Ingestor
	dashboard *dashboard.Aggregator
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	amqpSub   interface{ Close() error }
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation (nil uses system time).
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return newService(cfg, logger, closeLog, clk)
}

func newService(cfg config.Config, logger *slog.Logger, closeLog func(), clk clock.Clock) (*Service, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	alerts, err := store.Open(ctx, cfg.Store)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.store = alerts

	normalizer := normalize.New(clk)
	dispatcher := notify.NewDispatcher(cfg.Notify, logging.Component(logger, "notify"))
	service.ingestor = NewIngestor(normalizer, alerts, dispatcher,
		time.Duration(cfg.Notify.TimeoutSec)*time.Second, logging.Component(logger, "ingest"))

	var live dashboard.Upstream
	if client := upstream.New(cfg.Upstream, logging.Component(logger, "upstream")); client.Enabled() {
		live = client
	}
	aggregator, err := dashboard.New(cfg.Dashboard, alerts, live, normalizer, logging.Component(logger, "dashboard"))
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.dashboard = aggregator

	service.buildHTTPServer()
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildAMQPConsumer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	logger.Info("service initialized",
		"name", cfg.Service.Name,
		"store", cfg.Store.Backend,
		"upstream", live != nil,
		"notify_channels", dispatcher.Channels(),
	)
	return service, nil
}

// Handler returns the root HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Ready reports whether the service is accepting traffic.
func (s *Service) Ready() bool {
	return s.readyFlag.Load()
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "err", err)
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "err", err)
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.amqpSub != nil {
		if err := s.amqpSub.Close(); err != nil {
			s.logger.Error("amqp consumer close failed", "err", err)
			markErr(fmt.Errorf("amqp consumer close: %w", err))
		}
	}
	s.ingestor.Wait()
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "err", err)
		markErr(fmt.Errorf("store close: %w", err))
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.amqpSub != nil {
		_ = s.amqpSub.Close()
		s.amqpSub = nil
	}
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires the gated router.
func (s *Service) buildHTTPServer() {
	accessGate := gate.New(
		gate.NewPolicy(s.cfg.Gate),
		gate.NewAuthenticator(s.cfg.Gate, s.clock),
		logging.Component(s.logger, "gate"),
	)
	router := httpapi.NewRouter(s.cfg.HTTP, s.cfg.Gate, httpapi.Deps{
		Ingestor:  s.ingestor,
		Alerts:    s.store,
		Dashboard: s.dashboard,
		Gate:      accessGate,
		Ready:     s.readyFlag.Load,
		Logger:    logging.Component(s.logger, "http"),
	})
	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildNATSSubscriber starts JetStream ingestion when enabled.
func (s *Service) buildNATSSubscriber() error {
	if !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.ingestor, logging.Component(s.logger, "ingest.nats"))
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// buildAMQPConsumer starts RabbitMQ ingestion when enabled.
func (s *Service) buildAMQPConsumer() error {
	if !s.cfg.Ingest.AMQP.Enabled {
		return nil
	}
	consumer, err := ingest.NewAMQPConsumer(s.cfg.Ingest.AMQP, s.ingestor, logging.Component(s.logger, "ingest.amqp"))
	if err != nil {
		return err
	}
	s.amqpSub = consumer
	return nil
}
