package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all RedCube configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Workflow pipeline configuration
	Workflow WorkflowConfig `yaml:"workflow"`

	// HTML rendering
	Render RenderConfig `yaml:"render"`

	// Screenshot capture
	Imaging ImagingConfig `yaml:"imaging"`

	// Git checkpoint automation
	Git GitConfig `yaml:"git"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, genai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// WorkflowConfig configures the eight-stage pipeline.
type WorkflowConfig struct {
	CachePath       string `yaml:"cache_path"`        // SQLite artifact cache location
	StageTimeout    string `yaml:"stage_timeout"`     // Per-stage generation deadline
	ForceRegenerate bool   `yaml:"force_regenerate"`  // Bypass cache for every stage
	DigestMaxRunes  int    `yaml:"digest_max_runes"`  // Upstream summary budget per artifact
}

// RenderConfig configures HTML page rendering.
type RenderConfig struct {
	TemplateDir string `yaml:"template_dir"` // Optional on-disk overrides of embedded templates
	OutputDir   string `yaml:"output_dir"`
	WatchTemplates bool `yaml:"watch_templates"`
}

// ImagingConfig configures the headless browser capture.
type ImagingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Headless       bool   `yaml:"headless"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	DeviceScale    float64 `yaml:"device_scale"`
	PageSelector   string `yaml:"page_selector"`
	Timeout        string `yaml:"timeout"`
	Concurrency    int    `yaml:"concurrency"`
}

// GitConfig configures checkpoint commits.
type GitConfig struct {
	AutoCommit bool   `yaml:"auto_commit"`
	RepoPath   string `yaml:"repo_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "RedCube",
		Version: "2.0.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "120s",
		},

		Workflow: WorkflowConfig{
			CachePath:      filepath.Join("cache", "redcube.db"),
			StageTimeout:   "120s",
			DigestMaxRunes: 600,
		},

		Render: RenderConfig{
			OutputDir: "output",
		},

		Imaging: ImagingConfig{
			Enabled:        false,
			Headless:       true,
			ViewportWidth:  1242,
			ViewportHeight: 1660,
			DeviceScale:    2.0,
			PageSelector:   ".page-to-screenshot",
			Timeout:        "60s",
			Concurrency:    2,
		},

		Git: GitConfig{
			AutoCommit: false,
			RepoPath:   ".",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("REDCUBE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("REDCUBE_CACHE"); path != "" {
		c.Workflow.CachePath = path
	}
	if dir := os.Getenv("REDCUBE_OUTPUT"); dir != "" {
		c.Render.OutputDir = dir
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetStageTimeout returns the per-stage generation deadline.
func (c *Config) GetStageTimeout() time.Duration {
	d, err := time.ParseDuration(c.Workflow.StageTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetImagingTimeout returns the screenshot navigation deadline.
func (c *Config) GetImagingTimeout() time.Duration {
	return c.Imaging.GetTimeout()
}

// GetTimeout returns the screenshot navigation deadline.
func (c ImagingConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini", "genai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or GOOGLE_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Workflow.CachePath == "" {
		return fmt.Errorf("workflow cache path not configured")
	}
	return nil
}
