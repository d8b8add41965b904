// Package config loads calfeed server configuration from an optional TOML
// file and CALFEED_* environment variables. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

type Config struct {
	DatabaseURL string `toml:"database_url"` // CALFEED_DATABASE_URL (required unless serving from memory)
	HTTPAddr    string `toml:"http_addr"`    // CALFEED_HTTP_ADDR (default ":8080")
	NATSURL     string `toml:"nats_url"`     // CALFEED_NATS_URL (optional, empty = no mirror, no cross-process wake)
	AuthToken   string `toml:"auth_token"`   // CALFEED_AUTH_TOKEN (optional, empty = auth disabled)
	LogFormat   string `toml:"log_format"`   // CALFEED_LOG_FORMAT ("text" or "json")

	Stream    StreamConfig          `toml:"stream"`
	Retention model.RetentionPolicy `toml:"retention"` // CALFEED_RETAIN_ROWS, CALFEED_RETAIN_AGE
	Export    ExportConfig          `toml:"export"`
}

// StreamConfig controls stream sessions.
type StreamConfig struct {
	PollInterval      time.Duration `toml:"poll_interval"`      // CALFEED_POLL_INTERVAL (default 1s)
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"` // CALFEED_HEARTBEAT_INTERVAL (default 10s)
	MaxSession        time.Duration `toml:"max_session"`        // CALFEED_MAX_SESSION (default 300s)
	BatchLimit        int           `toml:"batch_limit"`        // CALFEED_BATCH_LIMIT (default 100)
	TrimProbability   float64       `toml:"trim_probability"`   // CALFEED_TRIM_PROBABILITY (default 0.01)
}

// ExportConfig controls the periodic snapshot export.
type ExportConfig struct {
	Interval   time.Duration `toml:"interval"`    // CALFEED_EXPORT_INTERVAL (default 0 = disabled)
	S3Bucket   string        `toml:"s3_bucket"`   // CALFEED_EXPORT_S3_BUCKET (enables S3 when set)
	S3Endpoint string        `toml:"s3_endpoint"` // CALFEED_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region   string        `toml:"s3_region"`   // CALFEED_EXPORT_S3_REGION (default "us-east-1")
	S3Key      string        `toml:"s3_key"`      // CALFEED_EXPORT_S3_KEY (default "calfeed/snapshot.jsonl")
	File       string        `toml:"file"`        // CALFEED_EXPORT_FILE (enables a local file copy when set)
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		HTTPAddr:  ":8080",
		LogFormat: "text",
		Stream: StreamConfig{
			PollInterval:      time.Second,
			HeartbeatInterval: 10 * time.Second,
			MaxSession:        300 * time.Second,
			BatchLimit:        100,
			TrimProbability:   0.01,
		},
		Retention: model.RetentionPolicy{
			KeepLast: 1000,
			MaxAge:   24 * time.Hour,
		},
		Export: ExportConfig{
			S3Region: "us-east-1",
			S3Key:    "calfeed/snapshot.jsonl",
		},
	}
}

// Load builds the configuration from defaults, the TOML file named by
// CALFEED_CONFIG (if any) and the environment, in that order.
func Load() (*Config, error) {
	c := Defaults()

	if path := os.Getenv("CALFEED_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("CALFEED_CONFIG %s: %w", path, err)
		}
	}

	c.DatabaseURL = envOrDefault("CALFEED_DATABASE_URL", c.DatabaseURL)
	c.HTTPAddr = envOrDefault("CALFEED_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = envOrDefault("CALFEED_NATS_URL", c.NATSURL)
	c.AuthToken = envOrDefault("CALFEED_AUTH_TOKEN", c.AuthToken)
	c.LogFormat = envOrDefault("CALFEED_LOG_FORMAT", c.LogFormat)
	c.Export.S3Bucket = envOrDefault("CALFEED_EXPORT_S3_BUCKET", c.Export.S3Bucket)
	c.Export.S3Endpoint = envOrDefault("CALFEED_EXPORT_S3_ENDPOINT", c.Export.S3Endpoint)
	c.Export.S3Region = envOrDefault("CALFEED_EXPORT_S3_REGION", c.Export.S3Region)
	c.Export.S3Key = envOrDefault("CALFEED_EXPORT_S3_KEY", c.Export.S3Key)
	c.Export.File = envOrDefault("CALFEED_EXPORT_FILE", c.Export.File)

	err := errors.Join(
		envDuration("CALFEED_POLL_INTERVAL", &c.Stream.PollInterval),
		envDuration("CALFEED_HEARTBEAT_INTERVAL", &c.Stream.HeartbeatInterval),
		envDuration("CALFEED_MAX_SESSION", &c.Stream.MaxSession),
		envInt("CALFEED_BATCH_LIMIT", &c.Stream.BatchLimit),
		envFloat("CALFEED_TRIM_PROBABILITY", &c.Stream.TrimProbability),
		envInt64("CALFEED_RETAIN_ROWS", &c.Retention.KeepLast),
		envDuration("CALFEED_RETAIN_AGE", &c.Retention.MaxAge),
		envDuration("CALFEED_EXPORT_INTERVAL", &c.Export.Interval),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges. requireDatabase is false when the server
// runs on the in-memory store.
func (c *Config) Validate(requireDatabase bool) error {
	var errs []error
	if requireDatabase && c.DatabaseURL == "" {
		errs = append(errs, errors.New("CALFEED_DATABASE_URL is required"))
	}
	if c.Stream.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat interval must be positive"))
	}
	if c.Stream.MaxSession <= 0 {
		errs = append(errs, errors.New("max session must be positive"))
	}
	if c.Stream.BatchLimit <= 0 {
		errs = append(errs, errors.New("batch limit must be positive"))
	}
	if c.Stream.TrimProbability < 0 || c.Stream.TrimProbability > 1 {
		errs = append(errs, fmt.Errorf("trim probability %v outside [0,1]", c.Stream.TrimProbability))
	}
	if c.Retention.KeepLast < 0 || c.Retention.MaxAge < 0 {
		errs = append(errs, errors.New("retention values must not be negative"))
	}
	if c.Export.Interval < 0 {
		errs = append(errs, errors.New("export interval must not be negative"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
