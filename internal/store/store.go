package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"alertdesk/internal/domain"

	"github.com/google/uuid"
)

// Filter narrows List results.
// Params: optional alert type (empty matches all) and limit (<=0 means unbounded).
type Filter struct {
	Type  domain.AlertType
	Limit int
}

// Store persists canonical alerts.
// Params: insert, filtered newest-first listing, per-type counts, and liveness.
// Returns: backend persistence behavior; backend failures are *domain.PersistenceError.
type Store interface {
	Insert(ctx context.Context, alert domain.Alert) (domain.Alert, error)
	List(ctx context.Context, filter Filter) ([]domain.Alert, error)
	CountByType(ctx context.Context, alertType domain.AlertType) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// prepareInsert validates an alert and fills store-owned fields.
// Params: normalized alert.
// Returns: alert with id assigned and timestamp in UTC at microsecond precision.
func prepareInsert(alert domain.Alert) (domain.Alert, error) {
	if alert.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Alert{}, domain.NewPersistenceError("insert", fmt.Errorf("generate id: %w", err))
		}
		alert.ID = id.String()
	}
	alert.Timestamp = alert.Timestamp.UTC().Truncate(time.Microsecond)
	if err := alert.Validate(); err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}

// matches reports whether alert passes the type filter.
func (f Filter) matches(alert domain.Alert) bool {
	return f.Type == "" || alert.Type == f.Type
}

// selectAlerts filters, orders newest-first, and applies limit.
// Params: candidate alerts (not mutated) and filter.
// Returns: non-nil result slice.
func selectAlerts(candidates []domain.Alert, filter Filter) []domain.Alert {
	out := make([]domain.Alert, 0, len(candidates))
	for _, alert := range candidates {
		if filter.matches(alert) {
			out = append(out, alert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// decodeDocument builds an alert from columns shared by document-style backends.
func decodeDocument(id string, alertType domain.AlertType, ts time.Time, details []byte, resolved bool) (domain.Alert, error) {
	alert := domain.Alert{ID: id, Type: alertType, Timestamp: ts.UTC(), Resolved: resolved}
	switch alertType {
	case domain.AlertTypeFraud:
		alert.Fraud = &domain.FraudDetails{}
		if err := json.Unmarshal(details, alert.Fraud); err != nil {
			return domain.Alert{}, fmt.Errorf("decode fraud details for %s: %w", id, err)
		}
	case domain.AlertTypeDoS:
		alert.DoS = &domain.DoSDetails{}
		if err := json.Unmarshal(details, alert.DoS); err != nil {
			return domain.Alert{}, fmt.Errorf("decode dos details for %s: %w", id, err)
		}
	default:
		return domain.Alert{}, fmt.Errorf("decode alert %s: unsupported type %q", id, alertType)
	}
	return alert, nil
}
