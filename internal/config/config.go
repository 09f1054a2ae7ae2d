package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHIMERA_LOG_LEVEL.
const EnvPrefix = "CHIMERA"

type Config struct {
	Port     int    `mapstructure:"port"`
	APIKey   string `mapstructure:"api_key"`
	UserID   string `mapstructure:"user_id"`
	SeedFile string `mapstructure:"seed_file"`

	Log             LogConfig             `mapstructure:"log"`
	Settings        SettingsConfig        `mapstructure:"settings"`
	Transition      TransitionConfig      `mapstructure:"transition"`
	ConversationAPI ConversationAPIConfig `mapstructure:"conversation_api"`
	Embedding       EmbeddingConfig       `mapstructure:"embedding"`
	Probe           ProbeConfig           `mapstructure:"probe"`
	Tracing         TracingConfig         `mapstructure:"tracing"`

	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode"`
}

type SettingsConfig struct {
	DBPath    string `mapstructure:"db_path"`
	Namespace string `mapstructure:"namespace"`
}

type TransitionConfig struct {
	Duration time.Duration `mapstructure:"duration"`
	Interval time.Duration `mapstructure:"interval"`
}

// ConversationAPIConfig points at the remote conversation service. An empty
// URL keeps conversations in process.
type ConversationAPIConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	MinRequests      uint32        `mapstructure:"min_requests"`
}

type EmbeddingConfig struct {
	Provider    string        `mapstructure:"provider"`
	OllamaURL   string        `mapstructure:"ollama_url"`
	Model       string        `mapstructure:"model"`
	Delay       time.Duration `mapstructure:"delay"`
	Cache       bool          `mapstructure:"cache"`
	Parallelism int           `mapstructure:"parallelism"`
}

type ProbeConfig struct {
	Mode        string        `mapstructure:"mode"`
	Delay       time.Duration `mapstructure:"delay"`
	SuccessRate float64       `mapstructure:"success_rate"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8742)
	v.SetDefault("api_key", "")
	v.SetDefault("user_id", "local-user")
	v.SetDefault("seed_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.mode", "development")

	v.SetDefault("settings.db_path", filepath.Join(os.Getenv("HOME"), ".local", "share", "chimera", "state.db"))
	v.SetDefault("settings.namespace", "chimera-settings-storage")

	v.SetDefault("transition.duration", 3*time.Second)
	v.SetDefault("transition.interval", 50*time.Millisecond)

	v.SetDefault("conversation_api.url", "")
	v.SetDefault("conversation_api.token", "")
	v.SetDefault("conversation_api.timeout", 30*time.Second)
	v.SetDefault("conversation_api.breaker.max_requests", 5)
	v.SetDefault("conversation_api.breaker.interval", 30*time.Second)
	v.SetDefault("conversation_api.breaker.timeout", 60*time.Second)
	v.SetDefault("conversation_api.breaker.failure_threshold", 0.8)
	v.SetDefault("conversation_api.breaker.min_requests", 5)

	v.SetDefault("embedding.provider", "simulated")
	v.SetDefault("embedding.ollama_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.delay", 2*time.Second)
	v.SetDefault("embedding.cache", true)
	v.SetDefault("embedding.parallelism", 4)

	v.SetDefault("probe.mode", "simulated")
	v.SetDefault("probe.delay", 1500*time.Millisecond)
	v.SetDefault("probe.success_rate", 0.8)
	v.SetDefault("probe.timeout", 10*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "otlp")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "chimera-state")
}

// Load reads defaults, then the config file, then CHIMERA_* environment
// overrides. path wins over $CHIMERA_CONFIG; with neither, chimera.yaml is
// looked up in the working directory and ~/.config/chimera and is optional.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chimera")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "chimera"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.File = v.ConfigFileUsed()

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Settings.Namespace == "" {
		return fmt.Errorf("settings.namespace must not be empty")
	}
	if c.Transition.Interval <= 0 {
		return fmt.Errorf("transition.interval must be positive, got %s", c.Transition.Interval)
	}
	if c.Transition.Duration < c.Transition.Interval {
		return fmt.Errorf("transition.duration (%s) must be at least transition.interval (%s)", c.Transition.Duration, c.Transition.Interval)
	}
	switch c.Embedding.Provider {
	case "simulated":
	case "ollama":
		if c.Embedding.OllamaURL == "" {
			return fmt.Errorf("embedding.ollama_url must not be empty")
		}
	default:
		return fmt.Errorf("embedding.provider must be simulated or ollama, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Parallelism < 1 {
		return fmt.Errorf("embedding.parallelism must be positive, got %d", c.Embedding.Parallelism)
	}
	if c.Probe.Mode != "simulated" && c.Probe.Mode != "http" {
		return fmt.Errorf("probe.mode must be simulated or http, got %q", c.Probe.Mode)
	}
	if c.Probe.SuccessRate < 0 || c.Probe.SuccessRate > 1 {
		return fmt.Errorf("probe.success_rate must be within [0, 1], got %f", c.Probe.SuccessRate)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %f", c.Tracing.SampleRatio)
	}
	if c.Tracing.Exporter != "otlp" && c.Tracing.Exporter != "stdout" {
		return fmt.Errorf("tracing.exporter must be otlp or stdout, got %q", c.Tracing.Exporter)
	}
	return nil
}
