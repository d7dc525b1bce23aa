package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, RecommendedDeployment, cfg.Deployment)
	assert.Equal(t, RecommendedAPIVersion, cfg.APIVersion)
	assert.Equal(t, RecommendedMaxTokens, cfg.MaxTokens)
	assert.True(t, cfg.EarlyWaitEnable)
	assert.Equal(t, RecommendedFirstChunkWait, cfg.FirstChunkWait())
	assert.Equal(t, RecommendedAPITimeout, cfg.APITimeout())
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.APIBase = "https://example.openai.azure.com"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing api_base", mutate: func(c *Config) { c.APIBase = "" }, wantErr: "api_base is required"},
		{name: "non-http api_base", mutate: func(c *Config) { c.APIBase = "ftp://x" }, wantErr: "api_base must be an http(s) URL"},
		{name: "missing deployment", mutate: func(c *Config) { c.Deployment = "" }, wantErr: "deployment is required"},
		{name: "zero max_tokens", mutate: func(c *Config) { c.MaxTokens = 0 }, wantErr: "max_tokens must be positive"},
		{name: "temperature out of range", mutate: func(c *Config) { c.Temperature = 3 }, wantErr: "temperature must be within"},
		{name: "zero api_timeout", mutate: func(c *Config) { c.APITimeoutSeconds = 0 }, wantErr: "api_timeout must be positive"},
		{name: "negative first_chunk_wait", mutate: func(c *Config) { c.FirstChunkWaitSeconds = -1 }, wantErr: "first_chunk_wait must not be negative"},
		{name: "zero tool iterations", mutate: func(c *Config) { c.MaxToolIterations = 0 }, wantErr: "max_tool_iterations must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_NoFileReturnsDefaults(t *testing.T) {
	t.Setenv("HEARTH_CONFIG_HOME", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_YamlOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HEARTH_CONFIG_HOME", dir)

	content := `
api_base: https://example.openai.azure.com
deployment: gpt-4o
api_version: 2025-01-01-preview
max_tokens: 256
first_chunk_wait: 3
tools_enable: false
language: it
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hearth.yml"), []byte(content), 0644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://example.openai.azure.com", cfg.APIBase)
	assert.Equal(t, "gpt-4o", cfg.Deployment)
	assert.Equal(t, "2025-01-01-preview", cfg.APIVersion)
	assert.Equal(t, 256, cfg.MaxTokens)
	assert.Equal(t, 3, cfg.FirstChunkWaitSeconds)
	assert.False(t, cfg.ToolsEnable)
	assert.Equal(t, "it", cfg.Language)
	// untouched keys keep their defaults
	assert.Equal(t, float32(RecommendedTemperature), cfg.Temperature)
	assert.NoError(t, cfg.Validate())
}

func TestFindConfigFile(t *testing.T) {
	t.Run("no config file", func(t *testing.T) {
		path, parser, shadowed := findConfigFile(t.TempDir())
		assert.Empty(t, path)
		assert.Nil(t, parser)
		assert.Empty(t, shadowed)
	})

	t.Run("precedence and shadowing", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hearth.yaml"), []byte("{}"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hearth.json"), []byte("{}"), 0644))

		path, parser, shadowed := findConfigFile(dir)
		assert.Equal(t, filepath.Join(dir, "hearth.yaml"), path)
		assert.NotNil(t, parser)
		assert.Equal(t, []string{filepath.Join(dir, "hearth.json")}, shadowed)
	})

	t.Run("every format gets a parser", func(t *testing.T) {
		for _, name := range []string{"hearth.yml", "hearth.yaml", "hearth.toml", "hearth.json"} {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(""), 0644))
			path, parser, _ := findConfigFile(dir)
			assert.Equal(t, filepath.Join(dir, name), path, name)
			assert.NotNil(t, parser, name)
		}
	})
}

func TestLoadConfig_TomlOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HEARTH_CONFIG_HOME", dir)

	content := `
deployment = "gpt-4o"
max_tokens = 128
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hearth.toml"), []byte(content), 0644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Deployment)
	assert.Equal(t, 128, cfg.MaxTokens)
}
