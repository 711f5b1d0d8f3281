package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Mode != "engine" {
		t.Errorf("default mode = %s", cfg.Mode)
	}
	if cfg.Oracle.BaseThresholdPct != 66 || cfg.Oracle.MaxThresholdPct != 95 {
		t.Errorf("oracle defaults = %+v", cfg.Oracle)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "monitor"
log_level = "debug"

[ledger]
node_url = "http://node:8332"
timeout = "45s"

[batch]
max_positions = 50
window = "10s"

[oracle]
base_threshold_pct = 70

[notify]
events = ["consensus_reached", "winnings_claimed"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "monitor" || cfg.LogLevel != "debug" {
		t.Errorf("mode/level = %s/%s", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Ledger.NodeURL != "http://node:8332" {
		t.Errorf("node_url = %s", cfg.Ledger.NodeURL)
	}
	if cfg.Ledger.Timeout.Duration != 45*time.Second {
		t.Errorf("timeout = %v", cfg.Ledger.Timeout.Duration)
	}
	if cfg.Batch.MaxPositions != 50 || cfg.Batch.Window.Duration != 10*time.Second {
		t.Errorf("batch = %+v", cfg.Batch)
	}
	if cfg.Oracle.BaseThresholdPct != 70 {
		t.Errorf("base threshold = %d", cfg.Oracle.BaseThresholdPct)
	}
	if len(cfg.Notify.Events) != 2 {
		t.Errorf("notify events = %v", cfg.Notify.Events)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr lost default: %s", cfg.Redis.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("missing file loaded")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"engine\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BODEGA_MODE", "monitor")
	t.Setenv("BODEGA_LOG_LEVEL", "warn")
	t.Setenv("BODEGA_BATCH_MAX_POSITIONS", "7")
	t.Setenv("BODEGA_BATCH_WINDOW", "2m")
	t.Setenv("BODEGA_ARCHIVE_ENABLED", "true")
	t.Setenv("BODEGA_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "monitor" {
		t.Errorf("mode = %s, want monitor", cfg.Mode)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %s", cfg.LogLevel)
	}
	if cfg.Batch.MaxPositions != 7 {
		t.Errorf("max positions = %d", cfg.Batch.MaxPositions)
	}
	if cfg.Batch.Window.Duration != 2*time.Minute {
		t.Errorf("window = %v", cfg.Batch.Window.Duration)
	}
	if !cfg.Archive.Enabled {
		t.Error("archive override ignored")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"empty node url", func(c *Config) { c.Ledger.NodeURL = "" }, "node_url"},
		{"empty proving url", func(c *Config) { c.Ledger.ProvingURL = "" }, "proving_url"},
		{"zero proof attempts", func(c *Config) { c.Proof.MaxAttempts = 0 }, "max_attempts"},
		{"no postgres target", func(c *Config) { c.Postgres.Host = ""; c.Postgres.DSN = "" }, "postgres"},
		{"zero batch cap", func(c *Config) { c.Batch.MaxPositions = 0 }, "max_positions"},
		{"threshold too low", func(c *Config) { c.Oracle.BaseThresholdPct = 50 }, "base_threshold_pct"},
		{"threshold too high", func(c *Config) { c.Oracle.BaseThresholdPct = 101 }, "base_threshold_pct"},
		{"max below base", func(c *Config) { c.Oracle.MaxThresholdPct = 60 }, "max_threshold_pct"},
		{"zero quorum", func(c *Config) { c.Oracle.MinOracles = 0 }, "min_oracles"},
		{"negative payout clamp", func(c *Config) { c.Settlement.MaxPayoutRatio = -1 }, "max_payout_ratio"},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true; c.S3.Bucket = "" }, "bucket"},
		{"bad port", func(c *Config) { c.Server.Port = 70_000 }, "port"},
		{"telegram token alone", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Defaults()
			c.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("invalid config validated")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Errorf("error %q does not mention %q", err, c.want)
			}
		})
	}
}

func TestValidateClientModeNeedsIdentity(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "client"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("client mode validated without identity")
	}
	for _, want := range []string{"user_id", "address", "prediction_market"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}

	cfg.Identity.UserID = "user-1"
	cfg.Identity.Address = "0xabc"
	cfg.Ledger.PredictionMarket = "0xmarket"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("configured client mode rejected: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Ledger.NodeURL = ""
	cfg.Batch.MaxPositions = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config validated")
	}
	msg := err.Error()
	for _, want := range []string{"unknown mode", "node_url", "max_positions"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Positions.Passphrase = "hunter2"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.TelegramToken = "tg-secret"
	cfg.Notify.DiscordWebhookURL = "https://discord/webhook"
	cfg.Notify.Events = []string{"consensus_reached"}

	red := RedactedConfig(cfg)
	for name, got := range map[string]string{
		"postgres password": red.Postgres.Password,
		"postgres dsn":      red.Postgres.DSN,
		"redis password":    red.Redis.Password,
		"s3 access key":     red.S3.AccessKey,
		"s3 secret key":     red.S3.SecretKey,
		"passphrase":        red.Positions.Passphrase,
		"api key":           red.Server.APIKey,
		"telegram token":    red.Notify.TelegramToken,
		"discord webhook":   red.Notify.DiscordWebhookURL,
	} {
		if got != "***" {
			t.Errorf("%s not redacted: %q", name, got)
		}
	}

	// Non-secret fields pass through, empty secrets stay empty.
	if red.Ledger.NodeURL != cfg.Ledger.NodeURL {
		t.Error("non-secret field changed")
	}
	empty := RedactedConfig(Defaults())
	if empty.Redis.Password != "" {
		t.Error("empty secret replaced")
	}

	// The redacted copy owns its slices.
	red.Notify.Events[0] = "mutated"
	if cfg.Notify.Events[0] != "consensus_reached" {
		t.Error("redacted copy shares the events slice")
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var back duration
	if err := back.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if back.Duration != d.Duration {
		t.Errorf("round trip = %v, want %v", back.Duration, d.Duration)
	}
	if err := back.UnmarshalText([]byte("banana")); err == nil {
		t.Error("invalid duration parsed")
	}
}
