// Package config defines the top-level configuration for the bodega engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BODEGA_* environment variables.
type Config struct {
	Identity   IdentityConfig   `toml:"identity"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Proof      ProofConfig      `toml:"proof"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Batch      BatchConfig      `toml:"batch"`
	Oracle     OracleConfig     `toml:"oracle"`
	Settlement SettlementConfig `toml:"settlement"`
	Market     MarketConfig     `toml:"market"`
	Positions  PositionsConfig  `toml:"positions"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
}

// IdentityConfig identifies the local participant. The address anchors the
// user secret that nullifiers derive from.
type IdentityConfig struct {
	UserID  string `toml:"user_id"`
	Address string `toml:"address"`
}

// LedgerConfig holds the node endpoints and deployed contract addresses.
type LedgerConfig struct {
	NodeURL          string   `toml:"node_url"`
	WsURL            string   `toml:"ws_url"`
	ProvingURL       string   `toml:"proving_url"`
	Timeout          duration `toml:"timeout"`
	MarketFactory    string   `toml:"market_factory"`
	PredictionMarket string   `toml:"prediction_market"`
	OracleConsensus  string   `toml:"oracle_consensus"`
}

// ProofConfig tunes proof generation retries.
type ProofConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	Backoff     duration `toml:"backoff"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls cold-storage archival of processed batches and the
// audit log.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// BatchConfig tunes position batching.
type BatchConfig struct {
	MaxPositions int      `toml:"max_positions"`
	Window       duration `toml:"window"`
	FlushTick    duration `toml:"flush_tick"`
}

// OracleConfig holds the consensus parameters.
type OracleConfig struct {
	BaseThresholdPct     int64 `toml:"base_threshold_pct"`
	DisputeEscalationPct int64 `toml:"dispute_escalation_pct"`
	MaxThresholdPct      int64 `toml:"max_threshold_pct"`
	MinOracles           int   `toml:"min_oracles"`
}

// SettlementConfig holds payout parameters.
type SettlementConfig struct {
	// MaxPayoutRatio clamps the payout multiplier (100 = 1x); 0 disables.
	MaxPayoutRatio int64 `toml:"max_payout_ratio"`
}

// MarketConfig holds market creation and lifecycle parameters.
type MarketConfig struct {
	// MinCreatorBond is a decimal string in ledger base units.
	MinCreatorBond string   `toml:"min_creator_bond"`
	SweepInterval  duration `toml:"sweep_interval"`
}

// PositionsConfig locates the local private position store.
type PositionsConfig struct {
	Path       string `toml:"path"`
	Passphrase string `toml:"passphrase"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration for TOML text (un)marshalling.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse Go duration strings like "30s" or "5m".
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration. Every value can be overridden
// by the TOML file or environment.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			NodeURL:    "http://localhost:8332",
			WsURL:      "ws://localhost:8333/events",
			ProvingURL: "http://localhost:6300",
			Timeout:    duration{30 * time.Second},
		},
		Proof: ProofConfig{
			MaxAttempts: 3,
			Backoff:     duration{time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bodega",
			User:          "bodega",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bodega-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
		},
		Batch: BatchConfig{
			MaxPositions: 100,
			Window:       duration{30 * time.Second},
			FlushTick:    duration{time.Second},
		},
		Oracle: OracleConfig{
			BaseThresholdPct:     66,
			DisputeEscalationPct: 10,
			MaxThresholdPct:      95,
			MinOracles:           3,
		},
		Settlement: SettlementConfig{
			MaxPayoutRatio: 10_000,
		},
		Market: MarketConfig{
			MinCreatorBond: "0",
			SweepInterval:  duration{time.Minute},
		},
		Positions: PositionsConfig{
			Path: "positions.json",
		},
		Server: ServerConfig{
			Enabled:   true,
			Port:      8080,
			RateLimit: 120,
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"engine":  true, // batcher, AMM, oracle, settlement
	"client":  true, // bet and claim against a remote engine
	"monitor": true, // event stream and notifications only
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for inconsistencies and returns a single
// error listing everything wrong.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, client, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Ledger.NodeURL == "" {
		errs = append(errs, "ledger: node_url must not be empty")
	}
	if c.Ledger.ProvingURL == "" {
		errs = append(errs, "ledger: proving_url must not be empty")
	}

	// Client modes place bets and claims, which need an identity and the
	// deployed contracts.
	needsIdentity := c.Mode == "client" || c.Mode == "full"
	if needsIdentity {
		if c.Identity.UserID == "" {
			errs = append(errs, "identity: user_id is required for mode "+c.Mode)
		}
		if c.Identity.Address == "" {
			errs = append(errs, "identity: address is required for mode "+c.Mode)
		}
		if c.Ledger.PredictionMarket == "" {
			errs = append(errs, "ledger: prediction_market address is required for mode "+c.Mode)
		}
	}

	if c.Proof.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("proof: max_attempts must be at least 1, got %d", c.Proof.MaxAttempts))
	}

	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "") {
		errs = append(errs, "postgres: either dsn or host+database must be set")
	}

	if c.Batch.MaxPositions < 1 {
		errs = append(errs, fmt.Sprintf("batch: max_positions must be at least 1, got %d", c.Batch.MaxPositions))
	}
	if c.Batch.Window.Duration <= 0 {
		errs = append(errs, "batch: window must be positive")
	}

	if c.Oracle.BaseThresholdPct <= 50 || c.Oracle.BaseThresholdPct > 100 {
		errs = append(errs, fmt.Sprintf("oracle: base_threshold_pct must be in (50,100], got %d", c.Oracle.BaseThresholdPct))
	}
	if c.Oracle.MaxThresholdPct < c.Oracle.BaseThresholdPct {
		errs = append(errs, "oracle: max_threshold_pct must not be below base_threshold_pct")
	}
	if c.Oracle.MinOracles < 1 {
		errs = append(errs, fmt.Sprintf("oracle: min_oracles must be at least 1, got %d", c.Oracle.MinOracles))
	}

	if c.Settlement.MaxPayoutRatio < 0 {
		errs = append(errs, "settlement: max_payout_ratio must not be negative")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "archive: s3 bucket must be set when archival is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, fmt.Sprintf("archive: retention_days must be at least 1, got %d", c.Archive.RetentionDays))
		}
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be in [1,65535], got %d", c.Server.Port))
	}

	// Telegram fields must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
