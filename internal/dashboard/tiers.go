package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"alertdesk/internal/metrics"
	"alertdesk/internal/upstream"
)

// ErrExhausted is returned when every tier of a section failed.
var ErrExhausted = errors.New("all tiers unavailable")

// tier is one named data source of a dashboard section.
type tier[T any] struct {
	name  string
	fetch func(ctx context.Context) (T, error)
}

// attempt records one tier failure for the soft warning.
type attempt struct {
	tier string
	err  error
}

// firstAvailable walks tiers in order and returns the first success.
// Params: section label for logs/metrics, ordered tiers.
// Returns: value, serving tier name, failures seen before it, or ErrExhausted.
func firstAvailable[T any](ctx context.Context, logger *slog.Logger, section string, tiers []tier[T]) (T, string, []attempt, error) {
	var failures []attempt
	for _, candidate := range tiers {
		value, err := candidate.fetch(ctx)
		if err == nil {
			metrics.DashboardTierServedTotal.WithLabelValues(section, candidate.name).Inc()
			return value, candidate.name, failures, nil
		}
		if skipped(err) {
			logger.Debug("dashboard tier skipped", "section", section, "tier", candidate.name, "err", err)
			continue
		}
		metrics.DashboardTierFailuresTotal.WithLabelValues(section, candidate.name).Inc()
		logger.Warn("dashboard tier failed", "section", section, "tier", candidate.name, "err", err)
		failures = append(failures, attempt{tier: candidate.name, err: err})
	}

	var zero T
	return zero, "", failures, fmt.Errorf("%s: %w", section, ErrExhausted)
}

// skipped marks tiers that are deliberately off rather than failing.
func skipped(err error) bool {
	return errors.Is(err, upstream.ErrNotConfigured) || errors.Is(err, errNoUpstream)
}
