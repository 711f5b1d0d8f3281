package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration in three layers: built-in defaults, an optional
// TOML file, then BODEGA_* environment variables. A .env file in the working
// directory is loaded first so containerised deployments can ship overrides
// alongside the binary.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr("BODEGA_MODE", &cfg.Mode)
	setStr("BODEGA_LOG_LEVEL", &cfg.LogLevel)

	setStr("BODEGA_USER_ID", &cfg.Identity.UserID)
	setStr("BODEGA_USER_ADDRESS", &cfg.Identity.Address)

	setStr("BODEGA_NODE_URL", &cfg.Ledger.NodeURL)
	setStr("BODEGA_WS_URL", &cfg.Ledger.WsURL)
	setStr("BODEGA_PROVING_URL", &cfg.Ledger.ProvingURL)
	setDuration("BODEGA_LEDGER_TIMEOUT", &cfg.Ledger.Timeout)
	setStr("BODEGA_MARKET_FACTORY", &cfg.Ledger.MarketFactory)
	setStr("BODEGA_PREDICTION_MARKET", &cfg.Ledger.PredictionMarket)
	setStr("BODEGA_ORACLE_CONSENSUS", &cfg.Ledger.OracleConsensus)

	setInt("BODEGA_PROOF_MAX_ATTEMPTS", &cfg.Proof.MaxAttempts)
	setDuration("BODEGA_PROOF_BACKOFF", &cfg.Proof.Backoff)

	setStr("BODEGA_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("BODEGA_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("BODEGA_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("BODEGA_POSTGRES_DB", &cfg.Postgres.Database)
	setStr("BODEGA_POSTGRES_USER", &cfg.Postgres.User)
	setStr("BODEGA_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("BODEGA_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setBool("BODEGA_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setStr("BODEGA_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("BODEGA_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("BODEGA_REDIS_DB", &cfg.Redis.DB)
	setBool("BODEGA_REDIS_TLS", &cfg.Redis.TLSEnabled)
	setDuration("BODEGA_PRICE_TTL", &cfg.Redis.PriceTTL)

	setStr("BODEGA_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("BODEGA_S3_REGION", &cfg.S3.Region)
	setStr("BODEGA_S3_BUCKET", &cfg.S3.Bucket)
	setStr("BODEGA_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("BODEGA_S3_SECRET_KEY", &cfg.S3.SecretKey)

	setBool("BODEGA_ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	setInt("BODEGA_ARCHIVE_RETENTION_DAYS", &cfg.Archive.RetentionDays)
	setDuration("BODEGA_ARCHIVE_INTERVAL", &cfg.Archive.Interval)

	setInt("BODEGA_BATCH_MAX_POSITIONS", &cfg.Batch.MaxPositions)
	setDuration("BODEGA_BATCH_WINDOW", &cfg.Batch.Window)
	setDuration("BODEGA_BATCH_FLUSH_TICK", &cfg.Batch.FlushTick)

	setInt64("BODEGA_ORACLE_BASE_THRESHOLD_PCT", &cfg.Oracle.BaseThresholdPct)
	setInt64("BODEGA_ORACLE_DISPUTE_ESCALATION_PCT", &cfg.Oracle.DisputeEscalationPct)
	setInt64("BODEGA_ORACLE_MAX_THRESHOLD_PCT", &cfg.Oracle.MaxThresholdPct)
	setInt("BODEGA_ORACLE_MIN_ORACLES", &cfg.Oracle.MinOracles)

	setInt64("BODEGA_SETTLEMENT_MAX_PAYOUT_RATIO", &cfg.Settlement.MaxPayoutRatio)

	setStr("BODEGA_MIN_CREATOR_BOND", &cfg.Market.MinCreatorBond)
	setDuration("BODEGA_MARKET_SWEEP_INTERVAL", &cfg.Market.SweepInterval)

	setStr("BODEGA_POSITIONS_PATH", &cfg.Positions.Path)
	setStr("BODEGA_POSITIONS_PASSPHRASE", &cfg.Positions.Passphrase)

	setBool("BODEGA_SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("BODEGA_SERVER_PORT", &cfg.Server.Port)
	setStr("BODEGA_API_KEY", &cfg.Server.APIKey)
	setStringSlice("BODEGA_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setInt("BODEGA_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)

	setStr("BODEGA_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("BODEGA_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("BODEGA_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("BODEGA_NOTIFY_EVENTS", &cfg.Notify.Events)
}

func setStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
