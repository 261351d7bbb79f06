package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "RedCube", cfg.Name)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 1242, cfg.Imaging.ViewportWidth)
	assert.Equal(t, 1660, cfg.Imaging.ViewportHeight)
	assert.Equal(t, ".page-to-screenshot", cfg.Imaging.PageSelector)
	assert.NotEmpty(t, cfg.Workflow.CachePath)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().LLM.Model, cfg.LLM.Model)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  provider: genai
  model: gemini-2.5-pro
workflow:
  cache_path: /tmp/alt.db
  stage_timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "genai", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, "/tmp/alt.db", cfg.Workflow.CachePath)
	assert.Equal(t, 30.0, cfg.GetStageTimeout().Seconds())
	// Untouched sections keep defaults.
	assert.Equal(t, 1242, cfg.Imaging.ViewportWidth)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key-123")
	t.Setenv("REDCUBE_MODEL", "gemini-override")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-key-123", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-override", cfg.LLM.Model)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err, "missing API key should fail validation")

	cfg.LLM.APIKey = "key"
	require.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "carrier-pigeon"
	require.Error(t, cfg.Validate())
}

func TestTimeoutFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "garbage"
	cfg.Workflow.StageTimeout = ""

	assert.Equal(t, 120.0, cfg.GetLLMTimeout().Seconds())
	assert.Equal(t, 120.0, cfg.GetStageTimeout().Seconds())
}
