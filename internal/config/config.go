package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort     = 2333
	defaultEnv      = "development"
	defaultMongoURI = "mongodb://localhost:27017"
	defaultMongoDB  = "techpress"
	defaultRedisURL = "redis://localhost:6379/0"

	defaultRetryBaseDelayMS = 500
	defaultRetryMaxAttempts = 3
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int      `yaml:"port"`
	MongoURI       string   `yaml:"mongo_uri"`
	MongoDatabase  string   `yaml:"mongo_database"`
	RedisURL       string   `yaml:"redis_url"`
	Env            string   `yaml:"env"` // "development" | "production"
	AllowedOrigins []string `yaml:"allowed_origins"`
	AI             AIConfig `yaml:"ai"`
}

// AIConfig configures the text-generation providers and request defaults.
type AIConfig struct {
	Providers     []AIProvider       `yaml:"providers"`
	InsightModel  *AIModelAssignment `yaml:"insight_model,omitempty"`
	QnAModel      *AIModelAssignment `yaml:"qna_model,omitempty"`
	TocModel      *AIModelAssignment `yaml:"toc_model,omitempty"`
	KeywordsModel *AIModelAssignment `yaml:"keywords_model,omitempty"`
	SummaryModel  *AIModelAssignment `yaml:"summary_model,omitempty"`
	Generation    GenerationConfig   `yaml:"generation"`
	Retry         RetryConfig        `yaml:"retry"`
}

// AIProvider describes one configured text-generation backend.
type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // openai | anthropic | openai-compatible
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

// AIModelAssignment pins a field's generation to a specific provider/model.
type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

// GenerationConfig holds sampling parameters passed to the provider.
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature"`
	TopK            int     `yaml:"top_k"`
	TopP            float64 `yaml:"top_p"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// RetryConfig controls the rate-limit backoff policy.
type RetryConfig struct {
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

// BaseDelay returns the configured base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "development") || c.Env == ""
}

// Load reads the YAML config at path and applies env overrides and defaults.
// A missing file is not an error; env + defaults still apply.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("TP_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("TP_MONGO_URI")); v != "" {
		cfg.MongoURI = v
	}
	if v := strings.TrimSpace(os.Getenv("TP_MONGO_DATABASE")); v != "" {
		cfg.MongoDatabase = v
	}
	if v := strings.TrimSpace(os.Getenv("TP_REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TP_ENV")); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("TP_AI_API_KEY")); v != "" && len(cfg.AI.Providers) == 0 {
		cfg.AI.Providers = []AIProvider{{
			ID:      "env",
			Name:    "env",
			Type:    strings.TrimSpace(os.Getenv("TP_AI_PROVIDER_TYPE")),
			APIKey:  v,
			Enabled: true,
		}}
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	if cfg.MongoURI == "" {
		cfg.MongoURI = defaultMongoURI
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = defaultMongoDB
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = defaultRedisURL
	}
	if cfg.AI.Generation.MaxOutputTokens == 0 {
		cfg.AI.Generation.MaxOutputTokens = 2048
	}
	if cfg.AI.Generation.Temperature == 0 {
		cfg.AI.Generation.Temperature = 0.7
	}
	if cfg.AI.Generation.TopP == 0 {
		cfg.AI.Generation.TopP = 0.95
	}
	if cfg.AI.Generation.TopK == 0 {
		cfg.AI.Generation.TopK = 40
	}
	if cfg.AI.Retry.BaseDelayMS == 0 {
		cfg.AI.Retry.BaseDelayMS = defaultRetryBaseDelayMS
	}
	if cfg.AI.Retry.MaxAttempts == 0 {
		cfg.AI.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
}

// SelectProvider resolves the provider for an assignment, falling back to the
// first enabled provider. The returned value is a copy; a model override from
// the assignment never mutates the config.
func (c AIConfig) SelectProvider(assignment *AIModelAssignment) *AIProvider {
	var providerID, overrideModel string
	if assignment != nil {
		providerID = strings.TrimSpace(assignment.ProviderID)
		overrideModel = strings.TrimSpace(assignment.Model)
	}

	pick := func(p AIProvider) *AIProvider {
		selected := p
		if overrideModel != "" {
			selected.DefaultModel = overrideModel
		}
		return &selected
	}

	if providerID != "" {
		for _, p := range c.Providers {
			if p.Enabled && strings.TrimSpace(p.ID) == providerID {
				return pick(p)
			}
		}
	}
	for _, p := range c.Providers {
		if p.Enabled {
			return pick(p)
		}
	}
	return nil
}
