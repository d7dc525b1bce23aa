package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const (
	RecommendedDeployment     = "gpt-4o-mini"
	RecommendedAPIVersion     = "2024-06-01"
	RecommendedTemperature    = 0.7
	RecommendedMaxTokens      = 512
	RecommendedAPITimeout     = 30 * time.Second
	RecommendedFirstChunkWait = 5 * time.Second
	RecommendedToolIterations = 5
	RecommendedMemoryBudget   = 4000
	DefaultServerPort         = 8855
)

// Config is the full runtime configuration for hearth. Durations are
// expressed in seconds in the config file.
type Config struct {
	APIBase    string `koanf:"api_base"`
	Deployment string `koanf:"deployment"`
	APIVersion string `koanf:"api_version"`

	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float32 `koanf:"temperature"`

	APITimeoutSeconds     int  `koanf:"api_timeout"`
	FirstChunkWaitSeconds int  `koanf:"first_chunk_wait"`
	EarlyWaitEnable       bool `koanf:"early_wait_enable"`

	ToolsEnable       bool `koanf:"tools_enable"`
	MaxToolIterations int  `koanf:"max_tool_iterations"`
	ParallelToolCalls bool `koanf:"parallel_tool_calls"`

	MemoryTokenBudget int    `koanf:"memory_token_budget"`
	Language          string `koanf:"language"`

	ServerPort        int    `koanf:"server_port"`
	ServiceWebhookURL string `koanf:"service_webhook_url"`
}

func (c Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

func (c Config) FirstChunkWait() time.Duration {
	return time.Duration(c.FirstChunkWaitSeconds) * time.Second
}

// Validate ensures the Config is usable.
func (c Config) Validate() error {
	if c.APIBase == "" {
		return fmt.Errorf("api_base is required")
	}
	if !strings.HasPrefix(c.APIBase, "http://") && !strings.HasPrefix(c.APIBase, "https://") {
		return fmt.Errorf("api_base must be an http(s) URL, got: %s", c.APIBase)
	}
	if c.Deployment == "" {
		return fmt.Errorf("deployment is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got: %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got: %v", c.Temperature)
	}
	if c.APITimeoutSeconds <= 0 {
		return fmt.Errorf("api_timeout must be positive, got: %d", c.APITimeoutSeconds)
	}
	if c.FirstChunkWaitSeconds < 0 {
		return fmt.Errorf("first_chunk_wait must not be negative, got: %d", c.FirstChunkWaitSeconds)
	}
	if c.MaxToolIterations <= 0 {
		return fmt.Errorf("max_tool_iterations must be positive, got: %d", c.MaxToolIterations)
	}
	return nil
}

// DefaultConfig returns a Config populated with the recommended values for
// everything except the endpoint, which has no sensible default.
func DefaultConfig() Config {
	return Config{
		Deployment:            RecommendedDeployment,
		APIVersion:            RecommendedAPIVersion,
		MaxTokens:             RecommendedMaxTokens,
		Temperature:           RecommendedTemperature,
		APITimeoutSeconds:     int(RecommendedAPITimeout / time.Second),
		FirstChunkWaitSeconds: int(RecommendedFirstChunkWait / time.Second),
		EarlyWaitEnable:       true,
		ToolsEnable:           true,
		MaxToolIterations:     RecommendedToolIterations,
		MemoryTokenBudget:     RecommendedMemoryBudget,
		Language:              "en",
		ServerPort:            GetServerPort(),
	}
}

// LoadConfig discovers and loads the hearth config file, layering it over the
// recommended defaults. A missing config file is not an error: the defaults
// are returned and validation is left to the caller, since some commands can
// run without a complete configuration.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	configHome, err := GetHearthConfigHome()
	if err != nil {
		return cfg, err
	}

	path, parser, shadowed := findConfigFile(configHome)
	if path == "" {
		return cfg, nil
	}
	if len(shadowed) > 0 {
		log.Warn().Str("chosen", path).Strs("shadowed", shadowed).
			Msg("multiple config files found, using the highest-precedence one")
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config file %s: %w", path, err)
	}

	return cfg, nil
}
