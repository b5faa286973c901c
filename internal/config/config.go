package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-alarmcorr/internal/engine"
	"github.com/miradorstack/mirador-alarmcorr/internal/models"
)

// Config captures every setting required to boot the correlator.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Topology    TopologyConfig    `yaml:"topology"`
	RootCause   RootCauseConfig   `yaml:"rootCause"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Store       StoreConfig       `yaml:"store"`
}

// ServerConfig controls gRPC, HTTP and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CorrelationConfig controls the window and attach decisions.
type CorrelationConfig struct {
	WindowSeconds      int           `yaml:"windowSeconds"`
	AttachPolicy       string        `yaml:"attachPolicy"`
	FallbackConfidence float64       `yaml:"fallbackConfidence"`
	SweepInterval      time.Duration `yaml:"sweepInterval"`
}

// TopologyConfig points at the adjacency file.
type TopologyConfig struct {
	Path string `yaml:"path"`
}

// RootCauseConfig orders domains for root-cause tie-breaks.
type RootCauseConfig struct {
	DomainPriority []string `yaml:"domainPriority"`
}

// ScoringConfig selects the confidence model.
type ScoringConfig struct {
	Weights engine.ScoringWeights `yaml:"weights"`
	Model   ModelConfig           `yaml:"model"`
}

// ModelConfig configures the optional remote scoring model. An empty BaseURL keeps
// scoring local.
type ModelConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	ScorePath     string        `yaml:"scorePath"`
	RootCausePath string        `yaml:"rootCausePath"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	CacheEntries  int           `yaml:"cacheEntries"`
}

// IngestConfig bounds the ingest lanes.
type IngestConfig struct {
	QueueSize     int           `yaml:"queueSize"`
	VendorRate    float64       `yaml:"vendorRate"`
	VendorBurst   int           `yaml:"vendorBurst"`
	SubmitTimeout time.Duration `yaml:"submitTimeout"`
}

// StoreConfig bounds closed-incident retention.
type StoreConfig struct {
	MaxClosed int `yaml:"maxClosed"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ALARMCORR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Correlation: CorrelationConfig{
			WindowSeconds:      30,
			AttachPolicy:       string(engine.AttachNearest),
			FallbackConfidence: engine.DefaultFallbackConfidence,
			SweepInterval:      time.Second,
		},
		Topology: TopologyConfig{Path: "configs/topology/default.yaml"},
		RootCause: RootCauseConfig{
			DomainPriority: []string{string(models.DomainRAN), string(models.DomainCore), string(models.DomainTransport)},
		},
		Scoring: ScoringConfig{
			Weights: engine.DefaultScoringWeights(),
			Model: ModelConfig{
				ScorePath:     "/v1/score",
				RootCausePath: "/v1/root-cause",
				Timeout:       250 * time.Millisecond,
				CacheTTL:      time.Minute,
				CacheEntries:  4096,
			},
		},
		Ingest: IngestConfig{
			QueueSize:     1024,
			SubmitTimeout: 2 * time.Second,
		},
		Store: StoreConfig{MaxClosed: 10000},
	}
}

// Validate rejects settings the correlator cannot run with.
func (c *Config) Validate() error {
	if c.Correlation.WindowSeconds < 1 {
		return fmt.Errorf("correlation.windowSeconds must be >= 1, got %d", c.Correlation.WindowSeconds)
	}
	switch engine.AttachPolicy(c.Correlation.AttachPolicy) {
	case engine.AttachNearest, engine.AttachAll:
	default:
		return fmt.Errorf("correlation.attachPolicy must be %q or %q, got %q", engine.AttachNearest, engine.AttachAll, c.Correlation.AttachPolicy)
	}
	if c.Correlation.FallbackConfidence < 0 || c.Correlation.FallbackConfidence > 1 {
		return fmt.Errorf("correlation.fallbackConfidence must be in [0,1], got %v", c.Correlation.FallbackConfidence)
	}
	if c.Correlation.SweepInterval <= 0 {
		return fmt.Errorf("correlation.sweepInterval must be positive")
	}
	if _, err := c.DomainPriority(); err != nil {
		return err
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return err
	}
	if c.Ingest.QueueSize < 1 {
		return fmt.Errorf("ingest.queueSize must be >= 1, got %d", c.Ingest.QueueSize)
	}
	if c.Ingest.VendorRate < 0 {
		return fmt.Errorf("ingest.vendorRate must not be negative")
	}
	if c.Scoring.Model.BaseURL != "" {
		// Score and root-cause calls both run inside the correlation decision.
		if c.Scoring.Model.Timeout <= 0 {
			return fmt.Errorf("scoring.model.timeout must be positive")
		}
		if c.Ingest.SubmitTimeout > 0 && 2*c.Scoring.Model.Timeout >= c.Ingest.SubmitTimeout {
			return fmt.Errorf("scoring.model.timeout %s must be under half of ingest.submitTimeout %s", c.Scoring.Model.Timeout, c.Ingest.SubmitTimeout)
		}
	}
	return nil
}

// DomainPriority parses rootCause.domainPriority.
func (c *Config) DomainPriority() ([]models.Domain, error) {
	out := make([]models.Domain, 0, len(c.RootCause.DomainPriority))
	seen := make(map[models.Domain]bool, len(c.RootCause.DomainPriority))
	for _, raw := range c.RootCause.DomainPriority {
		d, err := models.ParseDomain(raw)
		if err != nil {
			return nil, fmt.Errorf("rootCause.domainPriority: %w", err)
		}
		if seen[d] {
			return nil, fmt.Errorf("rootCause.domainPriority lists %s twice", d)
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ALARMCORR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ALARMCORR_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("ALARMCORR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ALARMCORR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ALARMCORR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	for _, name := range []string{"CORRELATION_WINDOW_SECONDS", "ALARMCORR_WINDOW_SECONDS"} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			cfg.Correlation.WindowSeconds = n
		}
	}
	if v := os.Getenv("ALARMCORR_ATTACH_POLICY"); v != "" {
		cfg.Correlation.AttachPolicy = strings.ToLower(v)
	}
	if v := os.Getenv("ALARMCORR_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.SweepInterval = d
		}
	}
	if v := os.Getenv("ALARMCORR_TOPOLOGY_PATH"); v != "" {
		cfg.Topology.Path = v
	}
	if v := os.Getenv("ALARMCORR_ROOT_CAUSE_PRIORITY"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.RootCause.DomainPriority = parts
	}
	if v := os.Getenv("ALARMCORR_MODEL_BASE_URL"); v != "" {
		cfg.Scoring.Model.BaseURL = v
	}
	if v := os.Getenv("ALARMCORR_MODEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scoring.Model.Timeout = d
		}
	}
	if v := os.Getenv("ALARMCORR_MODEL_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scoring.Model.CacheTTL = d
		}
	}
	if v := os.Getenv("ALARMCORR_INGEST_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.QueueSize = n
		}
	}
	if v := os.Getenv("ALARMCORR_INGEST_VENDOR_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ingest.VendorRate = r
		}
	}
	if v := os.Getenv("ALARMCORR_STORE_MAX_CLOSED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxClosed = n
		}
	}
	return nil
}
