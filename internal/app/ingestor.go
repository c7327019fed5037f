package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"alertdesk/internal/domain"
	"alertdesk/internal/metrics"
	"alertdesk/internal/normalize"
	"alertdesk/internal/store"
)

// SourceHTTP labels alerts created through the HTTP API.
const SourceHTTP = "http"

// Notifier delivers a stored alert to outbound channels.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert domain.Alert) error
}

// Ingestor is the single write path: normalize, persist, count, then notify.
// Params: normalizer, alert store, notifier, and per-alert notify budget.
// Returns: pipeline shared by HTTP handlers and broker consumers.
type Ingestor struct {
	normalizer    *normalize.Normalizer
	alerts        store.Store
	notifier      Notifier
	notifyTimeout time.Duration
	logger        *slog.Logger
	pending       sync.WaitGroup
}

// NewIngestor wires the ingestion pipeline.
// Params: normalizer, store, optional notifier, notify timeout, and logger.
// Returns: ready ingestor.
func NewIngestor(normalizer *normalize.Normalizer, alerts store.Store, notifier Notifier, notifyTimeout time.Duration, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		normalizer:    normalizer,
		alerts:        alerts,
		notifier:      notifier,
		notifyTimeout: notifyTimeout,
		logger:        logger,
	}
}

// IngestGeneric stores an alert from the generic {type, details} request.
func (i *Ingestor) IngestGeneric(ctx context.Context, request normalize.GenericRequest) (domain.Alert, error) {
	return i.ingest(ctx, SourceHTTP, func() (domain.Alert, error) {
		return i.normalizer.Generic(request)
	})
}

// IngestDoSPacket stores an alert from packet-capture fields.
func (i *Ingestor) IngestDoSPacket(ctx context.Context, payload normalize.Payload) (domain.Alert, error) {
	return i.ingest(ctx, SourceHTTP, func() (domain.Alert, error) {
		return i.normalizer.DoSPacket(payload)
	})
}

// IngestFraudDetection stores an alert from fraud classifier output.
func (i *Ingestor) IngestFraudDetection(ctx context.Context, payload normalize.Payload) (domain.Alert, error) {
	return i.ingest(ctx, SourceHTTP, func() (domain.Alert, error) {
		return i.normalizer.FraudDetection(payload)
	})
}

// IngestDetection stores raw detector output whose type is explicit or inferred.
// Params: context, source label for metrics, and decoded payload.
// Returns: stored alert, ValidationError, or PersistenceError.
func (i *Ingestor) IngestDetection(ctx context.Context, source string, payload normalize.Payload) (domain.Alert, error) {
	return i.ingest(ctx, source, func() (domain.Alert, error) {
		return i.normalizer.Detection(payload)
	})
}

func (i *Ingestor) ingest(ctx context.Context, source string, build func() (domain.Alert, error)) (domain.Alert, error) {
	alert, err := build()
	if err != nil {
		metrics.IngestRejectedTotal.WithLabelValues(source, "validation").Inc()
		return domain.Alert{}, err
	}
	stored, err := i.alerts.Insert(ctx, alert)
	if domain.IsValidation(err) {
		metrics.IngestRejectedTotal.WithLabelValues(source, "validation").Inc()
		return domain.Alert{}, err
	}
	if err != nil {
		metrics.IngestRejectedTotal.WithLabelValues(source, "persistence").Inc()
		if !domain.IsPersistence(err) {
			err = domain.NewPersistenceError("insert", err)
		}
		return domain.Alert{}, err
	}
	metrics.AlertsIngestedTotal.WithLabelValues(string(stored.Type), source).Inc()
	i.logger.Info("alert stored", "id", stored.ID, "type", stored.Type, "source", source)
	i.notify(stored)
	return stored, nil
}

// notify runs delivery in the background; the caller's response never waits on it.
func (i *Ingestor) notify(alert domain.Alert) {
	if i.notifier == nil {
		return
	}
	i.pending.Add(1)
	go func() {
		defer i.pending.Done()
		ctx := context.Background()
		if i.notifyTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, i.notifyTimeout)
			defer cancel()
		}
		if err := i.notifier.NotifyAlert(ctx, alert); err != nil {
			i.logger.Warn("alert notification incomplete", "id", alert.ID, "err", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (i *Ingestor) Wait() {
	i.pending.Wait()
}
