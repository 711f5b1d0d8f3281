package config

const redacted = "***"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by a
// placeholder so the active configuration can be logged safely. Slices are
// copied so the redacted value cannot be mutated through the original.
func RedactedConfig(cfg Config) Config {
	out := cfg

	if out.Postgres.DSN != "" {
		out.Postgres.DSN = redacted
	}
	if out.Postgres.Password != "" {
		out.Postgres.Password = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	if out.S3.AccessKey != "" {
		out.S3.AccessKey = redacted
	}
	if out.S3.SecretKey != "" {
		out.S3.SecretKey = redacted
	}
	if out.Positions.Passphrase != "" {
		out.Positions.Passphrase = redacted
	}
	if out.Server.APIKey != "" {
		out.Server.APIKey = redacted
	}
	if out.Notify.TelegramToken != "" {
		out.Notify.TelegramToken = redacted
	}
	if out.Notify.DiscordWebhookURL != "" {
		out.Notify.DiscordWebhookURL = redacted
	}

	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}

	return out
}
