package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const bcryptHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z7TRuL8l5N3YtW0eB4a7SDay"

func TestLoadSnapshotDefaultsWithoutSource(t *testing.T) {
	t.Parallel()

	cfg, err := LoadSnapshot(ConfigSource{})
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Service.Name != "alertdesk" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Store.Backend)
	}
	if cfg.Upstream.TimeoutMS != 2000 {
		t.Fatalf("expected upstream timeout 2000ms, got %d", cfg.Upstream.TimeoutMS)
	}
	if cfg.HTTP.ListLimitDefault != 10 || cfg.Dashboard.RecentLimit != 5 {
		t.Fatalf("unexpected list defaults: list=%d recent=%d", cfg.HTTP.ListLimitDefault, cfg.Dashboard.RecentLimit)
	}
	if strings.Join(cfg.Dashboard.StatsOrder, ",") != "live,store,snapshot" {
		t.Fatalf("unexpected stats order %v", cfg.Dashboard.StatsOrder)
	}
	if strings.Join(cfg.Dashboard.FeedOrder, ",") != "store,live" {
		t.Fatalf("unexpected feed order %v", cfg.Dashboard.FeedOrder)
	}
	if cfg.Dashboard.Fallback.TotalTransactions != 1250 || cfg.Dashboard.Fallback.FraudTransactions != 78 || cfg.Dashboard.Fallback.DoSAttacks != 42 {
		t.Fatalf("unexpected fallback snapshot %+v", cfg.Dashboard.Fallback)
	}
	if cfg.Gate.LoginPath != "/admin/login" || cfg.Gate.CookieName != "adminAuthenticated" {
		t.Fatalf("unexpected gate defaults %+v", cfg.Gate)
	}
	if len(cfg.Gate.ProtectedPrefixes) != 2 {
		t.Fatalf("unexpected protected prefixes %v", cfg.Gate.ProtectedPrefixes)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console log sink enabled by default")
	}
	if cfg.Ingest.AMQP.RequeueDelayMS != 1000 {
		t.Fatalf("unexpected amqp requeue delay %d", cfg.Ingest.AMQP.RequeueDelayMS)
	}
}

func TestLoadSnapshotFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alertdesk.toml")
	writeConfigFile(t, path, `
[service]
name = "desk-test"

[http]
listen = "127.0.0.1:18080"
list_limit_default = 20

[store]
backend = "redis"

[store.redis]
url = "redis://127.0.0.1:6379/0"
prefix = "desk"

[upstream]
base_url = "http://127.0.0.1:5001"
timeout_ms = 500

[dashboard]
stats_order = ["store", "snapshot"]
recent_limit = 3

[[gate.admin]]
username = "ops"
password_hash = "`+bcryptHash+`"

[notify.webhook]
enabled = true
url = "http://127.0.0.1:9000/hook"
template = "{{ .Alert.Type }} {{ .Alert.ID }}"
`)

	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if cfg.Service.Name != "desk-test" || cfg.HTTP.ListLimitDefault != 20 {
		t.Fatalf("unexpected decoded values: %+v", cfg)
	}
	if cfg.Store.Redis.Prefix != "desk" || cfg.Upstream.TimeoutMS != 500 {
		t.Fatalf("unexpected store/upstream values: %+v %+v", cfg.Store, cfg.Upstream)
	}
	if strings.Join(cfg.Dashboard.StatsOrder, ",") != "store,snapshot" || cfg.Dashboard.RecentLimit != 3 {
		t.Fatalf("unexpected dashboard values: %+v", cfg.Dashboard)
	}
	if len(cfg.Gate.Admin) != 1 || cfg.Gate.Admin[0].Username != "ops" {
		t.Fatalf("unexpected admin users: %+v", cfg.Gate.Admin)
	}
	if cfg.Notify.Webhook.Method != "POST" || cfg.Notify.Webhook.Retry.MaxAttempts != 5 {
		t.Fatalf("unexpected webhook defaults: %+v", cfg.Notify.Webhook)
	}
}

func TestLoadSnapshotFromDirMergesInLexicalOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, filepath.Join(dir, "10-base.toml"), `
[http]
listen = ":9000"

[upstream]
base_url = "http://provider:5001"
`)
	writeConfigFile(t, filepath.Join(dir, "20-override.toml"), `
[http]
listen = ":9100"
`)
	writeConfigFile(t, filepath.Join(dir, "README.md"), "ignored")

	cfg, err := LoadSnapshot(ConfigSource{Dir: dir})
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if cfg.HTTP.Listen != ":9100" {
		t.Fatalf("expected later fragment to win, got %q", cfg.HTTP.Listen)
	}
	if cfg.Upstream.BaseURL != "http://provider:5001" {
		t.Fatalf("expected earlier fragment value to survive, got %q", cfg.Upstream.BaseURL)
	}
}

func TestLoadSnapshotRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		body string
		want string
	}{
		"unknown backend": {
			body: "[store]\nbackend = \"mongo\"",
			want: "store.backend",
		},
		"postgres without dsn": {
			body: "[store]\nbackend = \"postgres\"",
			want: "store.postgres.dsn",
		},
		"unknown tier": {
			body: "[dashboard]\nstats_order = [\"live\", \"cache\"]",
			want: "unsupported tier",
		},
		"duplicate tier": {
			body: "[dashboard]\nfeed_order = [\"store\", \"store\"]",
			want: "twice",
		},
		"relative upstream": {
			body: "[upstream]\nbase_url = \"provider:5001\"",
			want: "upstream.base_url",
		},
		"plain password": {
			body: "[[gate.admin]]\nusername = \"ops\"\npassword_hash = \"secret\"",
			want: "bcrypt",
		},
		"telegram without token": {
			body: "[notify.telegram]\nenabled = true\nchat_id = \"1\"",
			want: "bot_token",
		},
		"broken template": {
			body: "[notify.webhook]\nenabled = true\nurl = \"http://x\"\ntemplate = \"{{ .Alert\"",
			want: "notify.webhook.template",
		},
		"unknown key": {
			body: "[http]\nlisten_addr = \":1\"",
			want: "decode config file",
		},
		"amqp without url": {
			body: "[ingest.amqp]\nenabled = true",
			want: "ingest.amqp.url",
		},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "bad.toml")
			writeConfigFile(t, path, tc.body)
			_, err := LoadSnapshot(ConfigSource{File: path})
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvPostgresDSN:   "postgres://desk@db/alerts?sslmode=disable",
		EnvRedisURL:      "redis://cache:6379/1",
		EnvNATSURL:       "nats://a:4222, nats://b:4222",
		EnvUpstreamURL:   "http://provider:5001",
		EnvSessionSecret: "s3cret",
		EnvAMQPURL:       "  ",
	}
	cfg := Default()
	cfg.Ingest.AMQP.URL = "amqp://keep"
	applyEnvOverrides(&cfg, func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})

	if cfg.Store.Postgres.DSN != env[EnvPostgresDSN] || cfg.Store.Redis.URL != env[EnvRedisURL] {
		t.Fatalf("store overrides not applied: %+v", cfg.Store)
	}
	if len(cfg.Store.NATS.URL) != 2 || cfg.Store.NATS.URL[1] != "nats://b:4222" || len(cfg.Ingest.NATS.URL) != 2 {
		t.Fatalf("nats overrides not applied: store=%v ingest=%v", cfg.Store.NATS.URL, cfg.Ingest.NATS.URL)
	}
	if cfg.Upstream.BaseURL != env[EnvUpstreamURL] || cfg.Gate.SessionSecret != "s3cret" {
		t.Fatalf("upstream/gate overrides not applied")
	}
	if cfg.Ingest.AMQP.URL != "amqp://keep" {
		t.Fatalf("blank env value must not override, got %q", cfg.Ingest.AMQP.URL)
	}
}

func TestFromCLI(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatalf("expected error for both file and dir")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" {
		t.Fatalf("unexpected source %+v err=%v", src, err)
	}
	src, err = FromCLI("", "")
	if err != nil || src != (ConfigSource{}) {
		t.Fatalf("expected empty source for defaults, got %+v err=%v", src, err)
	}
}

func TestNotifyChannelRegistry(t *testing.T) {
	t.Parallel()

	cfg := NotifyConfig{
		Telegram: TelegramNotifier{Enabled: true, Template: "tg", Retry: NotifyRetry{MaxAttempts: 2}},
	}
	if !NotifyChannelEnabled(cfg, NotifyChannelTelegram) || NotifyChannelEnabled(cfg, NotifyChannelWebhook) {
		t.Fatalf("unexpected enabled flags")
	}
	if NotifyChannelRetry(cfg, NotifyChannelTelegram).MaxAttempts != 2 {
		t.Fatalf("unexpected retry lookup")
	}
	if NotifyChannelTemplate(cfg, NotifyChannelTelegram) != "tg" || NotifyChannelTemplate(cfg, "sms") != "" {
		t.Fatalf("unexpected template lookup")
	}
	if len(NotifyChannelNames()) != 2 {
		t.Fatalf("unexpected channel names %v", NotifyChannelNames())
	}
}

func writeConfigFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}
