// Package ingest consumes raw detector output from message brokers and hands
// each message to the alert ingestion pipeline.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"alertdesk/internal/domain"
	"alertdesk/internal/metrics"
	"alertdesk/internal/normalize"
)

const (
	// SourceNATS labels alerts consumed from JetStream.
	SourceNATS = "nats"
	// SourceAMQP labels alerts consumed from RabbitMQ.
	SourceAMQP = "amqp"
)

// Sink normalizes and persists one raw detection.
// Params: context, broker source label, and decoded JSON object.
// Returns: stored alert, ValidationError for bad input, other errors for persistence failures.
type Sink interface {
	IngestDetection(ctx context.Context, source string, payload normalize.Payload) (domain.Alert, error)
}

// disposition tells a broker adapter how to settle one message.
type disposition int

const (
	// dispositionAck settles a stored message.
	dispositionAck disposition = iota
	// dispositionDrop settles a message that can never be stored.
	dispositionDrop
	// dispositionRetry asks the broker to redeliver later.
	dispositionRetry
)

func (d disposition) String() string {
	switch d {
	case dispositionAck:
		return "processed"
	case dispositionDrop:
		return "dropped"
	default:
		return "retry"
	}
}

// process decodes one message body and runs it through the sink.
// Params: context, sink, broker label, logger, and raw message body.
// Returns: settlement for the broker adapter.
func process(ctx context.Context, sink Sink, source string, logger *slog.Logger, body []byte) disposition {
	payload, err := decodePayload(body)
	if err != nil {
		metrics.IngestRejectedTotal.WithLabelValues(source, "decode").Inc()
		logger.Warn("detection decode failed", "source", source, "err", err)
		return dispositionDrop
	}
	alert, err := sink.IngestDetection(ctx, source, payload)
	switch {
	case err == nil:
		logger.Debug("detection stored", "source", source, "id", alert.ID, "type", alert.Type)
		return dispositionAck
	case domain.IsValidation(err):
		logger.Warn("detection rejected", "source", source, "err", err)
		return dispositionDrop
	default:
		logger.Error("detection store failed", "source", source, "err", err)
		return dispositionRetry
	}
}

// decodePayload parses one JSON object; numbers keep their literal form.
func decodePayload(body []byte) (normalize.Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, domain.NewValidationError("body", "message body is empty")
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var payload normalize.Payload
	if err := decoder.Decode(&payload); err != nil {
		return nil, domain.NewValidationError("body", fmt.Sprintf("invalid JSON object: %v", err))
	}
	if payload == nil {
		return nil, domain.NewValidationError("body", "message body must be a JSON object")
	}
	return payload, nil
}
