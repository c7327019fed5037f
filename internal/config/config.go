package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"alertdesk/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName     = "alertdesk"
	defaultHTTPListen      = ":8080"
	defaultHealthPath      = "/healthz"
	defaultReadyPath       = "/readyz"
	defaultMetricsPath     = "/metrics"
	defaultMaxBodyBytes    = 1 << 20
	defaultListLimit       = 10
	defaultListLimitMax    = 500
	defaultStoreTimeoutMS  = 3000
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultNATSBucket      = "alertdesk_alerts"
	defaultRedisPrefix     = "alertdesk"
	defaultUpstreamTimeout = 2000
	defaultStatsPath       = "/dashboard"
	defaultLatestFraudPath = "/fraud/latest"
	defaultLatestDoSPath   = "/dos/latest"
	defaultRecentLimit     = 5
	defaultCookieName      = "adminAuthenticated"
	defaultSessionTTLSec   = 12 * 60 * 60
	defaultDetectionSubj   = "alertdesk.detections"
	defaultDetectionStream = "ALERTDESK_DETECTIONS"
	defaultNATSConsumer    = "alertdesk-ingest"
	defaultNATSGroup       = "alertdesk-workers"
	defaultAMQPQueue       = "alertdesk.detections"
	defaultNotifyTimeout   = 10

	// StoreBackendMemory keeps alerts in process memory.
	StoreBackendMemory = "memory"
	// StoreBackendNATS keeps alerts in a JetStream KV bucket.
	StoreBackendNATS = "nats"
	// StoreBackendPostgres keeps alerts in a Postgres table.
	StoreBackendPostgres = "postgres"
	// StoreBackendRedis keeps alerts in Redis hashes with sorted-set indexes.
	StoreBackendRedis = "redis"

	// TierLive reads from the upstream detection provider.
	TierLive = "live"
	// TierStore reads from the alert store.
	TierStore = "store"
	// TierSnapshot serves last-known or configured default stats.
	TierSnapshot = "snapshot"

	// NotifyChannelTelegram identifies Telegram transport.
	NotifyChannelTelegram = "telegram"
	// NotifyChannelWebhook identifies generic HTTP webhook transport.
	NotifyChannelWebhook = "webhook"

	// Environment variables that override connection settings.
	EnvPostgresDSN   = "ALERTDESK_POSTGRES_DSN"
	EnvRedisURL      = "ALERTDESK_REDIS_URL"
	EnvNATSURL       = "ALERTDESK_NATS_URL"
	EnvUpstreamURL   = "ALERTDESK_UPSTREAM_URL"
	EnvSessionSecret = "ALERTDESK_SESSION_SECRET"
	EnvAMQPURL       = "ALERTDESK_AMQP_URL"
)

var (
	notifyChannelOrder    = []string{NotifyChannelTelegram, NotifyChannelWebhook}
	notifyChannelRegistry = map[string]notifyChannelDescriptor{
		NotifyChannelTelegram: {
			enabled:  func(cfg NotifyConfig) bool { return cfg.Telegram.Enabled },
			retry:    func(cfg NotifyConfig) NotifyRetry { return cfg.Telegram.Retry },
			template: func(cfg NotifyConfig) string { return cfg.Telegram.Template },
		},
		NotifyChannelWebhook: {
			enabled:  func(cfg NotifyConfig) bool { return cfg.Webhook.Enabled },
			retry:    func(cfg NotifyConfig) NotifyRetry { return cfg.Webhook.Retry },
			template: func(cfg NotifyConfig) string { return cfg.Webhook.Template },
		},
	}
	supportedStatsTiers = map[string]struct{}{TierLive: {}, TierStore: {}, TierSnapshot: {}}
	supportedFeedTiers  = map[string]struct{}{TierLive: {}, TierStore: {}}
)

// notifyChannelDescriptor stores generic accessors for one notify transport.
type notifyChannelDescriptor struct {
	enabled  func(NotifyConfig) bool
	retry    func(NotifyConfig) NotifyRetry
	template func(NotifyConfig) string
}

// Config holds service runtime settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Log       LogConfig       `toml:"log"`
	HTTP      HTTPConfig      `toml:"http"`
	Store     StoreConfig     `toml:"store"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Gate      GateConfig      `toml:"gate"`
	Ingest    IngestConfig    `toml:"ingest"`
	Notify    NotifyConfig    `toml:"notify"`
}

// ServiceConfig contains process-level settings.
type ServiceConfig struct {
	Name string `toml:"name"`
}

// HTTPConfig configures the public HTTP surface.
// Params: listen address, probe paths, body limit, and list limits.
// Returns: HTTP server behavior.
type HTTPConfig struct {
	Listen           string `toml:"listen"`
	HealthPath       string `toml:"health_path"`
	ReadyPath        string `toml:"ready_path"`
	MetricsPath      string `toml:"metrics_path"`
	MaxBodyBytes     int64  `toml:"max_body_bytes"`
	ListLimitDefault int    `toml:"list_limit_default"`
	ListLimitMax     int    `toml:"list_limit_max"`
}

// StoreConfig selects and configures the alert store backend.
type StoreConfig struct {
	Backend   string              `toml:"backend"`
	TimeoutMS int                 `toml:"timeout_ms"`
	NATS      NATSStoreConfig     `toml:"nats"`
	Postgres  PostgresStoreConfig `toml:"postgres"`
	Redis     RedisStoreConfig    `toml:"redis"`
}

// NATSStoreConfig configures the JetStream KV backend.
type NATSStoreConfig struct {
	URL               []string `toml:"url"`
	Bucket            string   `toml:"bucket"`
	AllowCreateBucket bool     `toml:"allow_create_bucket"`
}

// PostgresStoreConfig configures the Postgres backend.
type PostgresStoreConfig struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisStoreConfig configures the Redis backend.
type RedisStoreConfig struct {
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
}

// UpstreamConfig configures the live detection provider.
// Params: base URL, request timeout, endpoint paths, and breaker thresholds.
// Returns: upstream client behavior; empty base URL disables the live tier.
type UpstreamConfig struct {
	BaseURL         string        `toml:"base_url"`
	TimeoutMS       int           `toml:"timeout_ms"`
	StatsPath       string        `toml:"stats_path"`
	LatestFraudPath string        `toml:"latest_fraud_path"`
	LatestDoSPath   string        `toml:"latest_dos_path"`
	Breaker         BreakerConfig `toml:"breaker"`
}

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	MaxFailures      uint32 `toml:"max_failures"`
	OpenSec          int    `toml:"open_sec"`
	HalfOpenRequests uint32 `toml:"half_open_requests"`
}

// DashboardConfig configures aggregation tiers and fallback numbers.
type DashboardConfig struct {
	StatsOrder  []string       `toml:"stats_order"`
	FeedOrder   []string       `toml:"feed_order"`
	RecentLimit int            `toml:"recent_limit"`
	Fallback    FallbackConfig `toml:"fallback"`
}

// FallbackConfig is the default stats snapshot and store-tier baseline.
type FallbackConfig struct {
	TotalTransactions int64   `toml:"total_transactions"`
	FraudTransactions int64   `toml:"fraud_transactions"`
	DoSAttacks        int64   `toml:"dos_attacks"`
	NonFraudAmount    float64 `toml:"non_fraud_amount"`
}

// GateConfig configures the access gate and admin sessions.
// Params: protected prefixes, credential cookie, optional session secret, and admin users.
// Returns: gate policy inputs.
type GateConfig struct {
	AdminPrefix       string      `toml:"admin_prefix"`
	LoginPath         string      `toml:"login_path"`
	ProtectedPrefixes []string    `toml:"protected_prefixes"`
	CookieName        string      `toml:"cookie_name"`
	SessionSecret     string      `toml:"session_secret"`
	SessionTTLSec     int         `toml:"session_ttl_sec"`
	SecureCookie      bool        `toml:"secure_cookie"`
	Admin             []AdminUser `toml:"admin"`
}

// AdminUser is one operator account with a bcrypt password hash.
type AdminUser struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"`
}

// IngestConfig defines broker ingestion interfaces.
type IngestConfig struct {
	NATS NATSIngestConfig `toml:"nats"`
	AMQP AMQPIngestConfig `toml:"amqp"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection, stream routing, and ack/redelivery policy.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"subject"`
	Stream        string   `toml:"stream"`
	ConsumerName  string   `toml:"consumer_name"`
	DeliverGroup  string   `toml:"deliver_group"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// AMQPIngestConfig configures RabbitMQ queue ingestion.
type AMQPIngestConfig struct {
	Enabled     bool   `toml:"enabled"`
	URL         string `toml:"url"`
	Queue       string `toml:"queue"`
	Exchange    string `toml:"exchange"`
	RoutingKey  string `toml:"routing_key"`
	ConsumerTag string `toml:"consumer_tag"`
	Prefetch    int    `toml:"prefetch"`
	// RequeueDelayMS holds a failed delivery before it is requeued.
	RequeueDelayMS int `toml:"requeue_delay_ms"`
}

// NotifyConfig defines outbound notification behavior for new alerts.
type NotifyConfig struct {
	TimeoutSec int              `toml:"timeout_sec"`
	Telegram   TelegramNotifier `toml:"telegram"`
	Webhook    WebhookNotifier  `toml:"webhook"`
}

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// TelegramNotifier defines Telegram channel settings.
type TelegramNotifier struct {
	Enabled  bool        `toml:"enabled"`
	BotToken string      `toml:"bot_token"`
	ChatID   string      `toml:"chat_id"`
	APIBase  string      `toml:"api_base"`
	Template string      `toml:"template"`
	Retry    NotifyRetry `toml:"retry"`
}

// WebhookNotifier defines generic outbound HTTP endpoint.
type WebhookNotifier struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
	Template   string            `toml:"template"`
	Retry      NotifyRetry       `toml:"retry"`
}

// LogConfig contains console/file logging sinks.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// ConfigSource describes file or directory config source.
// Params: at most one of file path or directory path; both empty means built-in defaults.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}
	return ConfigSource{File: filePath, Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file, directory, or defaults-only mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var (
		cfg Config
		err error
	)
	switch {
	case src.File != "":
		cfg, err = loadFile(src.File)
	case src.Dir != "":
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg, os.LookupEnv)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns built-in configuration without any file source.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	var cfg Config
	if err := decodeFileInto(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeFileInto decodes one TOML file over an existing snapshot.
// Keys absent from the file keep the destination's values.
func decodeFileInto(path string, dst *Config) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	decoder := toml.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	return nil
}

// loadDir reads and merges TOML files from one directory in lexical order.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		if err := decodeFileInto(file, &merged); err != nil {
			return Config{}, err
		}
	}
	return merged, nil
}

// applyDefaults fills unset fields with built-in values.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.HTTP.MetricsPath) == "" {
		cfg.HTTP.MetricsPath = defaultMetricsPath
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.HTTP.ListLimitDefault <= 0 {
		cfg.HTTP.ListLimitDefault = defaultListLimit
	}
	if cfg.HTTP.ListLimitMax <= 0 {
		cfg.HTTP.ListLimitMax = defaultListLimitMax
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreBackendMemory
	}
	if cfg.Store.TimeoutMS <= 0 {
		cfg.Store.TimeoutMS = defaultStoreTimeoutMS
	}
	if strings.TrimSpace(cfg.Store.NATS.Bucket) == "" {
		cfg.Store.NATS.Bucket = defaultNATSBucket
	}
	if strings.TrimSpace(cfg.Store.Redis.Prefix) == "" {
		cfg.Store.Redis.Prefix = defaultRedisPrefix
	}
	if cfg.Store.Postgres.MaxOpenConns <= 0 {
		cfg.Store.Postgres.MaxOpenConns = 10
	}
	if cfg.Store.Postgres.MaxIdleConns <= 0 {
		cfg.Store.Postgres.MaxIdleConns = 5
	}

	if cfg.Upstream.TimeoutMS <= 0 {
		cfg.Upstream.TimeoutMS = defaultUpstreamTimeout
	}
	if strings.TrimSpace(cfg.Upstream.StatsPath) == "" {
		cfg.Upstream.StatsPath = defaultStatsPath
	}
	if strings.TrimSpace(cfg.Upstream.LatestFraudPath) == "" {
		cfg.Upstream.LatestFraudPath = defaultLatestFraudPath
	}
	if strings.TrimSpace(cfg.Upstream.LatestDoSPath) == "" {
		cfg.Upstream.LatestDoSPath = defaultLatestDoSPath
	}
	if cfg.Upstream.Breaker.MaxFailures == 0 {
		cfg.Upstream.Breaker.MaxFailures = 3
	}
	if cfg.Upstream.Breaker.OpenSec <= 0 {
		cfg.Upstream.Breaker.OpenSec = 30
	}
	if cfg.Upstream.Breaker.HalfOpenRequests == 0 {
		cfg.Upstream.Breaker.HalfOpenRequests = 1
	}

	if len(cfg.Dashboard.StatsOrder) == 0 {
		cfg.Dashboard.StatsOrder = []string{TierLive, TierStore, TierSnapshot}
	}
	if len(cfg.Dashboard.FeedOrder) == 0 {
		cfg.Dashboard.FeedOrder = []string{TierStore, TierLive}
	}
	cfg.Dashboard.StatsOrder = normalizeTierList(cfg.Dashboard.StatsOrder)
	cfg.Dashboard.FeedOrder = normalizeTierList(cfg.Dashboard.FeedOrder)
	if cfg.Dashboard.RecentLimit <= 0 {
		cfg.Dashboard.RecentLimit = defaultRecentLimit
	}
	if cfg.Dashboard.Fallback == (FallbackConfig{}) {
		cfg.Dashboard.Fallback = FallbackConfig{
			TotalTransactions: 1250,
			FraudTransactions: 78,
			DoSAttacks:        42,
		}
	}

	if strings.TrimSpace(cfg.Gate.AdminPrefix) == "" {
		cfg.Gate.AdminPrefix = "/admin"
	}
	if strings.TrimSpace(cfg.Gate.LoginPath) == "" {
		cfg.Gate.LoginPath = "/admin/login"
	}
	if cfg.Gate.ProtectedPrefixes == nil {
		cfg.Gate.ProtectedPrefixes = []string{"/api/fraud-alerts", "/api/dos-alerts"}
	}
	if strings.TrimSpace(cfg.Gate.CookieName) == "" {
		cfg.Gate.CookieName = defaultCookieName
	}
	if cfg.Gate.SessionTTLSec <= 0 {
		cfg.Gate.SessionTTLSec = defaultSessionTTLSec
	}

	if strings.TrimSpace(cfg.Ingest.NATS.Subject) == "" {
		cfg.Ingest.NATS.Subject = defaultDetectionSubj
	}
	if strings.TrimSpace(cfg.Ingest.NATS.Stream) == "" {
		cfg.Ingest.NATS.Stream = defaultDetectionStream
	}
	if strings.TrimSpace(cfg.Ingest.NATS.ConsumerName) == "" {
		cfg.Ingest.NATS.ConsumerName = defaultNATSConsumer
	}
	if strings.TrimSpace(cfg.Ingest.NATS.DeliverGroup) == "" {
		cfg.Ingest.NATS.DeliverGroup = defaultNATSGroup
	}
	if cfg.Ingest.NATS.AckWaitSec <= 0 {
		cfg.Ingest.NATS.AckWaitSec = 30
	}
	if cfg.Ingest.NATS.NackDelayMS <= 0 {
		cfg.Ingest.NATS.NackDelayMS = 1000
	}
	if cfg.Ingest.NATS.MaxDeliver == 0 {
		cfg.Ingest.NATS.MaxDeliver = -1
	}
	if cfg.Ingest.NATS.MaxAckPending <= 0 {
		cfg.Ingest.NATS.MaxAckPending = 1024
	}
	if strings.TrimSpace(cfg.Ingest.AMQP.Queue) == "" {
		cfg.Ingest.AMQP.Queue = defaultAMQPQueue
	}
	if strings.TrimSpace(cfg.Ingest.AMQP.ConsumerTag) == "" {
		cfg.Ingest.AMQP.ConsumerTag = defaultServiceName
	}
	if cfg.Ingest.AMQP.Prefetch <= 0 {
		cfg.Ingest.AMQP.Prefetch = 32
	}
	if cfg.Ingest.AMQP.RequeueDelayMS <= 0 {
		cfg.Ingest.AMQP.RequeueDelayMS = 1000
	}

	if cfg.Notify.TimeoutSec <= 0 {
		cfg.Notify.TimeoutSec = defaultNotifyTimeout
	}
	if strings.TrimSpace(cfg.Notify.Telegram.APIBase) == "" {
		cfg.Notify.Telegram.APIBase = "https://api.telegram.org"
	}
	if strings.TrimSpace(cfg.Notify.Webhook.Method) == "" {
		cfg.Notify.Webhook.Method = "POST"
	}
	if cfg.Notify.Webhook.TimeoutSec <= 0 {
		cfg.Notify.Webhook.TimeoutSec = defaultNotifyTimeout
	}
	fillNotifyRetryDefaults(&cfg.Notify.Telegram.Retry)
	fillNotifyRetryDefaults(&cfg.Notify.Webhook.Retry)
}

// applyEnvOverrides replaces connection settings from environment variables.
// Params: config to mutate and env lookup function.
// Returns: config side effects for every present, non-empty variable.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
	if value, ok := get(EnvPostgresDSN); ok {
		cfg.Store.Postgres.DSN = value
	}
	if value, ok := get(EnvRedisURL); ok {
		cfg.Store.Redis.URL = value
	}
	if value, ok := get(EnvNATSURL); ok {
		urls := normalizeNATSURLs(strings.Split(value, ","))
		cfg.Store.NATS.URL = urls
		cfg.Ingest.NATS.URL = urls
	}
	if value, ok := get(EnvUpstreamURL); ok {
		cfg.Upstream.BaseURL = value
	}
	if value, ok := get(EnvSessionSecret); ok {
		cfg.Gate.SessionSecret = value
	}
	if value, ok := get(EnvAMQPURL); ok {
		cfg.Ingest.AMQP.URL = value
	}
	if len(cfg.Store.NATS.URL) == 0 && cfg.Store.Backend == StoreBackendNATS {
		cfg.Store.NATS.URL = []string{defaultNATSURL}
	}
	if len(cfg.Ingest.NATS.URL) == 0 && cfg.Ingest.NATS.Enabled {
		cfg.Ingest.NATS.URL = []string{defaultNATSURL}
	}
}

func fillNotifyRetryDefaults(retry *NotifyRetry) {
	if retry == nil {
		return
	}
	if retry.Backoff == "" {
		retry.Backoff = "exponential"
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = 500
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = 30000
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 5
	}
}

// validateConfig validates full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first failing rule.
func validateConfig(cfg Config) error {
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	for name, value := range map[string]string{
		"http.health_path":  cfg.HTTP.HealthPath,
		"http.ready_path":   cfg.HTTP.ReadyPath,
		"http.metrics_path": cfg.HTTP.MetricsPath,
	} {
		if !strings.HasPrefix(value, "/") {
			return fmt.Errorf("%s must start with /", name)
		}
	}
	if cfg.HTTP.ListLimitDefault > cfg.HTTP.ListLimitMax {
		return errors.New("http.list_limit_default must be <= http.list_limit_max")
	}

	switch cfg.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendNATS:
		if len(normalizeNATSURLs(cfg.Store.NATS.URL)) == 0 {
			return errors.New("store.nats.url is required when store.backend=nats")
		}
	case StoreBackendPostgres:
		if strings.TrimSpace(cfg.Store.Postgres.DSN) == "" {
			return fmt.Errorf("store.postgres.dsn (or %s) is required when store.backend=postgres", EnvPostgresDSN)
		}
	case StoreBackendRedis:
		if strings.TrimSpace(cfg.Store.Redis.URL) == "" {
			return fmt.Errorf("store.redis.url (or %s) is required when store.backend=redis", EnvRedisURL)
		}
	default:
		return fmt.Errorf("store.backend has unsupported value %q", cfg.Store.Backend)
	}

	if base := strings.TrimSpace(cfg.Upstream.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("upstream.base_url %q is not an absolute URL", base)
		}
	}

	if err := validateTierList("dashboard.stats_order", cfg.Dashboard.StatsOrder, supportedStatsTiers); err != nil {
		return err
	}
	if err := validateTierList("dashboard.feed_order", cfg.Dashboard.FeedOrder, supportedFeedTiers); err != nil {
		return err
	}
	fallback := cfg.Dashboard.Fallback
	if fallback.TotalTransactions < 0 || fallback.FraudTransactions < 0 || fallback.DoSAttacks < 0 || fallback.NonFraudAmount < 0 {
		return errors.New("dashboard.fallback values must be >=0")
	}

	if err := validateGate(cfg.Gate); err != nil {
		return err
	}

	if cfg.Ingest.NATS.Enabled {
		if len(normalizeNATSURLs(cfg.Ingest.NATS.URL)) == 0 {
			return errors.New("ingest.nats.url is required when ingest.nats.enabled=true")
		}
		if cfg.Ingest.NATS.MaxDeliver < -1 {
			return errors.New("ingest.nats.max_deliver must be -1 or >0")
		}
	}
	if cfg.Ingest.AMQP.Enabled && strings.TrimSpace(cfg.Ingest.AMQP.URL) == "" {
		return fmt.Errorf("ingest.amqp.url (or %s) is required when ingest.amqp.enabled=true", EnvAMQPURL)
	}

	return validateNotify(cfg.Notify)
}

// validateGate checks access-gate paths and admin accounts.
func validateGate(gate GateConfig) error {
	if !strings.HasPrefix(gate.AdminPrefix, "/") {
		return errors.New("gate.admin_prefix must start with /")
	}
	if !strings.HasPrefix(gate.LoginPath, "/") {
		return errors.New("gate.login_path must start with /")
	}
	if path.Clean(gate.LoginPath) == path.Clean(gate.AdminPrefix) {
		return errors.New("gate.login_path must differ from gate.admin_prefix")
	}
	for i, prefix := range gate.ProtectedPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("gate.protected_prefixes[%d] must start with /", i)
		}
	}
	seen := make(map[string]struct{}, len(gate.Admin))
	for i, user := range gate.Admin {
		name := strings.TrimSpace(user.Username)
		if name == "" {
			return fmt.Errorf("gate.admin[%d].username is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("gate.admin[%d].username %q is duplicated", i, name)
		}
		seen[name] = struct{}{}
		if !strings.HasPrefix(user.PasswordHash, "$2") {
			return fmt.Errorf("gate.admin[%d].password_hash must be a bcrypt hash", i)
		}
	}
	return nil
}

// validateNotify checks enabled notification channels and their templates.
func validateNotify(cfg NotifyConfig) error {
	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
			return errors.New("notify.telegram.bot_token is required")
		}
		if strings.TrimSpace(cfg.Telegram.ChatID) == "" {
			return errors.New("notify.telegram.chat_id is required")
		}
	}
	if cfg.Webhook.Enabled {
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return errors.New("notify.webhook.url is required")
		}
	}
	for _, channel := range notifyChannelOrder {
		body := strings.TrimSpace(NotifyChannelTemplate(cfg, channel))
		if body == "" {
			continue
		}
		if err := validateMessageTemplate("notify."+channel+".template", body); err != nil {
			return err
		}
	}
	return nil
}

func validateTierList(name string, tiers []string, supported map[string]struct{}) error {
	seen := make(map[string]struct{}, len(tiers))
	for _, tier := range tiers {
		if _, ok := supported[tier]; !ok {
			return fmt.Errorf("%s has unsupported tier %q", name, tier)
		}
		if _, dup := seen[tier]; dup {
			return fmt.Errorf("%s lists tier %q twice", name, tier)
		}
		seen[tier] = struct{}{}
	}
	return nil
}

func normalizeTierList(tiers []string) []string {
	out := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, strings.ToLower(strings.TrimSpace(tier)))
	}
	return out
}

func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// NotifyChannelNames returns supported notify channels in stable order.
func NotifyChannelNames() []string {
	out := make([]string, len(notifyChannelOrder))
	copy(out, notifyChannelOrder)
	return out
}

// NotifyChannelEnabled reports whether one channel is enabled.
// Params: notify config and channel key.
// Returns: false for unknown channels.
func NotifyChannelEnabled(cfg NotifyConfig, channel string) bool {
	descriptor, ok := notifyChannelRegistry[channel]
	if !ok {
		return false
	}
	return descriptor.enabled(cfg)
}

// NotifyChannelRetry returns retry policy for one channel.
func NotifyChannelRetry(cfg NotifyConfig, channel string) NotifyRetry {
	descriptor, ok := notifyChannelRegistry[channel]
	if !ok {
		return NotifyRetry{}
	}
	return descriptor.retry(cfg)
}

// NotifyChannelTemplate returns the configured message template body for one channel.
func NotifyChannelTemplate(cfg NotifyConfig, channel string) string {
	descriptor, ok := notifyChannelRegistry[channel]
	if !ok {
		return ""
	}
	return descriptor.template(cfg)
}

func validateMessageTemplate(path, body string) error {
	if _, err := templatefmt.ParseNotificationTemplate(path, body); err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}
	return nil
}
