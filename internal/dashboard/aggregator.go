// Package dashboard assembles the operator dashboard from live upstream data,
// the alert store, and a last-known statistics snapshot.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"alertdesk/internal/config"
	"alertdesk/internal/domain"
	"alertdesk/internal/normalize"
	"alertdesk/internal/store"
	"alertdesk/internal/upstream"
)

const (
	sectionStats = "stats"
	sectionFeed  = "feed"

	liveFraudID = "live-fraud"
	liveDoSID   = "live-dos"
)

var errNoUpstream = errors.New("no upstream provider")

// Upstream is the live provider surface the aggregator reads.
type Upstream interface {
	Stats(ctx context.Context) (upstream.StatsReport, error)
	LatestFraud(ctx context.Context) (normalize.Payload, error)
	LatestDoS(ctx context.Context) (normalize.Payload, error)
}

// Aggregator builds dashboard views with per-section tier fallback.
// Params: alert store, optional upstream, normalizer for live events, tier order and baseline.
// Returns: views that are always complete; degraded sections carry a warning.
type Aggregator struct {
	store       store.Store
	upstream    Upstream
	normalizer  *normalize.Normalizer
	baseline    config.FallbackConfig
	recentLimit int
	logger      *slog.Logger

	statsTiers []tier[domain.Stats]
	feedTiers  []tier[[]domain.Alert]

	last atomic.Pointer[domain.Stats]
}

// New wires tiers in the configured order.
// Params: dashboard settings, store, upstream (nil disables the live tiers), normalizer, logger.
// Returns: aggregator or error for unknown tier names.
func New(cfg config.DashboardConfig, alerts store.Store, live Upstream, normalizer *normalize.Normalizer, logger *slog.Logger) (*Aggregator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = normalize.New(nil)
	}
	recent := cfg.RecentLimit
	if recent <= 0 {
		recent = 5
	}

	a := &Aggregator{
		store:       alerts,
		upstream:    live,
		normalizer:  normalizer,
		baseline:    cfg.Fallback,
		recentLimit: recent,
		logger:      logger,
	}

	statsByName := map[string]tier[domain.Stats]{
		config.TierLive:     {name: config.TierLive, fetch: a.liveStats},
		config.TierStore:    {name: config.TierStore, fetch: a.storeStats},
		config.TierSnapshot: {name: config.TierSnapshot, fetch: a.snapshotStats},
	}
	for _, name := range cfg.StatsOrder {
		t, ok := statsByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown stats tier %q", name)
		}
		a.statsTiers = append(a.statsTiers, t)
	}

	feedByName := map[string]tier[[]domain.Alert]{
		config.TierLive:  {name: config.TierLive, fetch: a.liveFeed},
		config.TierStore: {name: config.TierStore, fetch: a.storeFeed},
	}
	for _, name := range cfg.FeedOrder {
		t, ok := feedByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown feed tier %q", name)
		}
		a.feedTiers = append(a.feedTiers, t)
	}
	return a, nil
}

// BuildDashboard computes stats, recent feed, and chart series.
// Params: request context bounding every tier call.
// Returns: complete view; never an error.
func (a *Aggregator) BuildDashboard(ctx context.Context) domain.DashboardView {
	var warnings []string

	stats, statsSource, statsFailures, err := firstAvailable(ctx, a.logger, sectionStats, a.statsTiers)
	warnings = append(warnings, describe(sectionStats, statsFailures)...)
	if err != nil {
		// Only reachable when the snapshot tier is not configured.
		stats = a.defaultStats()
		statsSource = config.TierSnapshot
		warnings = append(warnings, "statistics unavailable, serving default snapshot")
	} else if statsSource != config.TierSnapshot {
		remembered := stats
		a.last.Store(&remembered)
	}

	feed, feedSource, feedFailures, err := firstAvailable(ctx, a.logger, sectionFeed, a.feedTiers)
	warnings = append(warnings, describe(sectionFeed, feedFailures)...)
	if err != nil {
		feed = []domain.Alert{}
		feedSource = "none"
		if len(feedFailures) > 0 {
			warnings = append(warnings, "recent alerts unavailable")
		}
	}

	return domain.DashboardView{
		Stats:        stats,
		RecentAlerts: feed,
		ChartData:    domain.BuildChartData(stats),
		StatsSource:  statsSource,
		FeedSource:   feedSource,
		Warning:      strings.Join(warnings, "; "),
	}
}

// LastKnown returns the most recent stats served by a live or store tier.
func (a *Aggregator) LastKnown() (domain.Stats, bool) {
	last := a.last.Load()
	if last == nil {
		return domain.Stats{}, false
	}
	return *last, true
}

func (a *Aggregator) liveStats(ctx context.Context) (domain.Stats, error) {
	if a.upstream == nil {
		return domain.Stats{}, errNoUpstream
	}
	report, err := a.upstream.Stats(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.ComputeStats(report.TotalTransactions, report.FraudTransactions, report.DoSAttacks, report.NonFraudAmount), nil
}

// storeStats counts alerts per type; transaction totals come from the baseline.
func (a *Aggregator) storeStats(ctx context.Context) (domain.Stats, error) {
	fraud, err := a.store.CountByType(ctx, domain.AlertTypeFraud)
	if err != nil {
		return domain.Stats{}, err
	}
	dos, err := a.store.CountByType(ctx, domain.AlertTypeDoS)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.ComputeStats(a.baseline.TotalTransactions, fraud, dos, a.baseline.NonFraudAmount), nil
}

func (a *Aggregator) snapshotStats(context.Context) (domain.Stats, error) {
	if last, ok := a.LastKnown(); ok {
		return last, nil
	}
	return a.defaultStats(), nil
}

func (a *Aggregator) defaultStats() domain.Stats {
	return domain.ComputeStats(a.baseline.TotalTransactions, a.baseline.FraudTransactions, a.baseline.DoSAttacks, a.baseline.NonFraudAmount)
}

func (a *Aggregator) storeFeed(ctx context.Context) ([]domain.Alert, error) {
	return a.store.List(ctx, store.Filter{Limit: a.recentLimit})
}

// liveFeed returns at most one latest event per type, newest first.
// Fails when any provider call failed and no event was produced.
func (a *Aggregator) liveFeed(ctx context.Context) ([]domain.Alert, error) {
	if a.upstream == nil {
		return nil, errNoUpstream
	}

	sources := []struct {
		id      string
		fetch   func(context.Context) (normalize.Payload, error)
		convert func(normalize.Payload) (domain.Alert, error)
	}{
		{id: liveFraudID, fetch: a.upstream.LatestFraud, convert: a.normalizer.FraudDetection},
		{id: liveDoSID, fetch: a.upstream.LatestDoS, convert: a.normalizer.DoSPacket},
	}

	out := make([]domain.Alert, 0, len(sources))
	var errs []error
	for _, source := range sources {
		payload, err := source.fetch(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if payload == nil {
			continue
		}
		alert, err := source.convert(payload)
		if err != nil {
			a.logger.Warn("live event rejected", "source", source.id, "err", err)
			errs = append(errs, err)
			continue
		}
		alert.ID = source.id
		out = append(out, alert)
	}
	if len(errs) > 0 && len(out) == 0 {
		return nil, errors.Join(errs...)
	}
	if len(errs) > 0 {
		a.logger.Warn("live feed partially unavailable", "served", len(out), "err", errors.Join(errs...))
	}

	sort.Slice(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	return out, nil
}

func describe(section string, failures []attempt) []string {
	out := make([]string, 0, len(failures))
	for _, failure := range failures {
		out = append(out, fmt.Sprintf("%s tier %s unavailable", section, failure.tier))
	}
	return out
}
