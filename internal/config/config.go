// Package config loads and validates the engine configuration and the
// per-workflow run configuration.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/germanevangelisti/watcher-sub003/internal/agent"
)

// Config is the complete engine configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `yaml:"address" env:"BW_SERVER_ADDRESS"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"BW_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"BW_SERVER_WRITE_TIMEOUT"`
	EnableCORS      bool          `yaml:"enable_cors" env:"BW_SERVER_ENABLE_CORS"`
	EnableWebSocket bool          `yaml:"enable_websocket" env:"BW_SERVER_ENABLE_WEBSOCKET"`
}

// OrchestratorConfig bounds workflow execution.
type OrchestratorConfig struct {
	Workers            int64         `yaml:"workers" env:"BW_ORCH_WORKERS"`
	DefaultTaskTimeout time.Duration `yaml:"default_task_timeout" env:"BW_ORCH_TASK_TIMEOUT"`
	EventBufferSize    int           `yaml:"event_buffer_size" env:"BW_ORCH_EVENT_BUFFER"`
}

// PipelineConfig bounds document pipeline processing.
type PipelineConfig struct {
	MaxConcurrent int64         `yaml:"max_concurrent" env:"BW_PIPELINE_MAX_CONCURRENT"`
	BatchDelay    time.Duration `yaml:"batch_delay" env:"BW_PIPELINE_BATCH_DELAY"`
	StageTimeout  time.Duration `yaml:"stage_timeout" env:"BW_PIPELINE_STAGE_TIMEOUT"`
	DocumentsDir  string        `yaml:"documents_dir" env:"BW_PIPELINE_DOCUMENTS_DIR"`
	IndexPath     string        `yaml:"index_path" env:"BW_PIPELINE_INDEX_PATH"`
	UseFTS5       bool          `yaml:"use_fts5" env:"BW_PIPELINE_USE_FTS5"`

	// Defaults is the run configuration applied to documents processed
	// outside a workflow (direct pipeline endpoints).
	Defaults map[string]any `yaml:"defaults,omitempty"`
}

// AnalyzerConfig configures the external analysis model.
type AnalyzerConfig struct {
	Provider       string        `yaml:"provider" env:"BW_ANALYZER_PROVIDER"`
	Model          string        `yaml:"model" env:"BW_ANALYZER_MODEL"`
	APIKey         string        `yaml:"api_key" env:"BW_ANALYZER_API_KEY"`
	BaseURL        string        `yaml:"base_url" env:"BW_ANALYZER_BASE_URL"`
	MaxConcurrent  int64         `yaml:"max_concurrent" env:"BW_ANALYZER_MAX_CONCURRENT"`
	InterCallDelay time.Duration `yaml:"inter_call_delay" env:"BW_ANALYZER_INTER_CALL_DELAY"`
	Temperature    float32       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens" env:"BW_ANALYZER_MAX_TOKENS"`
}

// ToAgentConfig converts to the agent package's analyzer configuration.
// Zero temperature and token limits mean "model default" and are left
// unset.
func (a AnalyzerConfig) ToAgentConfig() agent.AnalyzerConfig {
	cfg := agent.AnalyzerConfig{
		Provider:       a.Provider,
		Model:          a.Model,
		APIKey:         a.APIKey,
		BaseURL:        a.BaseURL,
		MaxConcurrent:  a.MaxConcurrent,
		InterCallDelay: a.InterCallDelay,
	}
	if a.Temperature > 0 {
		temp := a.Temperature
		cfg.Temperature = &temp
	}
	if a.MaxTokens > 0 {
		tokens := a.MaxTokens
		cfg.MaxTokens = &tokens
	}
	return cfg
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"BW_LOG_LEVEL"`
	Output string `yaml:"output" env:"BW_LOG_OUTPUT"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			EnableCORS:      true,
			EnableWebSocket: true,
		},
		Orchestrator: OrchestratorConfig{
			Workers:            4,
			DefaultTaskTimeout: 5 * time.Minute,
			EventBufferSize:    64,
		},
		Pipeline: PipelineConfig{
			MaxConcurrent: 3,
			BatchDelay:    500 * time.Millisecond,
			StageTimeout:  2 * time.Minute,
			DocumentsDir:  "documents",
			IndexPath:     "bulletins.db",
			UseFTS5:       true,
		},
		Analyzer: AnalyzerConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			MaxConcurrent:  2,
			InterCallDelay: time.Second,
			Temperature:    0.1,
			MaxTokens:      4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// Load builds the configuration with layered precedence:
// defaults < YAML file < environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			// Missing file falls back to defaults.
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides walks the struct and applies values from the
// environment variables named by `env` field tags.
func applyEnvOverrides(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := applyEnvOverrides(field); err != nil {
				return err
			}
			continue
		}

		envName := fieldType.Tag.Get("env")
		if envName == "" {
			continue
		}
		envValue := os.Getenv(envName)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("env %s: %w", envName, err)
		}
	}
	return nil
}

// setFieldValue parses a string into a struct field.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field is not settable")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration %q", value)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float %q", value)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
			return nil
		}
		return fmt.Errorf("unsupported slice type %s", field.Type())
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Orchestrator.Workers <= 0 {
		return fmt.Errorf("orchestrator.workers must be positive, got %d", c.Orchestrator.Workers)
	}
	if c.Orchestrator.DefaultTaskTimeout <= 0 {
		return fmt.Errorf("orchestrator.default_task_timeout must be positive")
	}
	if c.Orchestrator.EventBufferSize <= 0 {
		return fmt.Errorf("orchestrator.event_buffer_size must be positive, got %d", c.Orchestrator.EventBufferSize)
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		return fmt.Errorf("pipeline.max_concurrent must be positive, got %d", c.Pipeline.MaxConcurrent)
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline.stage_timeout must be positive")
	}
	if c.Pipeline.BatchDelay < 0 {
		return fmt.Errorf("pipeline.batch_delay must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Pipeline.Defaults != nil {
		if err := ValidateRunConfig(c.Pipeline.Defaults); err != nil {
			return fmt.Errorf("pipeline.defaults: %w", err)
		}
	}
	return nil
}
