// Package config holds environment-driven configuration for the post-op
// call orchestration service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration, assembled from the environment.
type Config struct {
	StoreURL  string
	Fabric    FabricConfig
	LLM       LLMConfig
	Email     EmailConfig
	Worker    WorkerConfig
	Retention RetentionConfig
	HTTPPort  string
}

// FabricConfig configures the Call Fabric adapter.
type FabricConfig struct {
	// URL is the fabric control-plane endpoint.
	URL string

	// TrunkID is the outbound SIP trunk used for patient calls.
	TrunkID string

	// AgentName is the agent dispatched onto follow-up call rooms.
	AgentName string
}

// LLMConfig configures the chat-completion adapter.
type LLMConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // optional override for self-hosted gateways
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// EmailConfig configures the discharge-summary sender.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether email sending is configured at all.
func (c EmailConfig) Enabled() bool { return c.Host != "" }

// RetentionConfig controls the archive loop.
type RetentionConfig struct {
	// ArchiveAfter is how long terminal calls stay live before moving to
	// the archive hash.
	ArchiveAfter time.Duration

	// Interval is how often the archive pass runs.
	Interval time.Duration
}

// trunkIDPrefix is the known SIP trunk id namespace. A trunk id outside it
// is a config mistake that would otherwise only surface on the first call.
const trunkIDPrefix = "ST_"

// Load assembles configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		StoreURL: getEnv("STORE_URL", "redis://localhost:6379/0"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Fabric: FabricConfig{
			URL:       os.Getenv("CALL_FABRIC_URL"),
			TrunkID:   os.Getenv("SIP_OUTBOUND_TRUNK_ID"),
			AgentName: getEnv("AGENT_NAME", "postop-followup"),
		},
		LLM: LLMConfig{
			APIKey:      os.Getenv("LLM_API_KEY"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:     os.Getenv("LLM_BASE_URL"),
			MaxTokens:   1500,
			Temperature: 0.1,
			Timeout:     30 * time.Second,
		},
		Email: EmailConfig{
			Host:     os.Getenv("EMAIL_HOST"),
			Username: os.Getenv("EMAIL_USERNAME"),
			Password: os.Getenv("EMAIL_PASSWORD"),
			From:     getEnv("EMAIL_FROM", "care@postop.example.com"),
		},
		Worker:    DefaultWorkerConfig(),
		Retention: DefaultRetentionConfig(),
	}

	var err error
	if cfg.Email.Port, err = intEnv("EMAIL_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.Worker.TickInterval, err = secondsEnv("TICK_INTERVAL_S", cfg.Worker.TickInterval); err != nil {
		return nil, err
	}
	if cfg.Worker.MaxBatch, err = intEnv("MAX_BATCH", cfg.Worker.MaxBatch); err != nil {
		return nil, err
	}
	if cfg.Worker.Concurrency, err = intEnv("WORKER_CONCURRENCY", cfg.Worker.Concurrency); err != nil {
		return nil, err
	}
	if cfg.Worker.CallTimeout, err = secondsEnv("CALL_TIMEOUT_S", cfg.Worker.CallTimeout); err != nil {
		return nil, err
	}
	if cfg.Worker.DrainTimeout, err = secondsEnv("DRAIN_TIMEOUT_S", cfg.Worker.DrainTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.StoreURL == "" {
		return fmt.Errorf("STORE_URL is required")
	}
	if c.Fabric.TrunkID != "" && !strings.HasPrefix(c.Fabric.TrunkID, trunkIDPrefix) {
		return fmt.Errorf("SIP_OUTBOUND_TRUNK_ID %q does not match trunk prefix %q", c.Fabric.TrunkID, trunkIDPrefix)
	}
	if err := c.Worker.Validate(); err != nil {
		return err
	}
	if c.Retention.ArchiveAfter <= 0 || c.Retention.Interval <= 0 {
		return fmt.Errorf("retention durations must be positive")
	}
	if c.Email.Enabled() {
		if c.Email.Port <= 0 {
			return fmt.Errorf("EMAIL_PORT must be positive when EMAIL_HOST is set")
		}
		if c.Email.From == "" {
			return fmt.Errorf("EMAIL_FROM is required when EMAIL_HOST is set")
		}
	}
	return nil
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		ArchiveAfter: 30 * 24 * time.Hour,
		Interval:     6 * time.Hour,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func secondsEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}
