package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                int      `mapstructure:"port"`
	LogLevel            string   `mapstructure:"log_level"`
	LogFormat           string   `mapstructure:"log_format"`             // "json" or "text"
	AllowedOrigins      []string `mapstructure:"allowed_origins"`
	KubeconfigPath      string   `mapstructure:"kubeconfig_path"`        // empty = in-cluster, then ~/.kube/config
	KubeContext         string   `mapstructure:"kube_context"`
	RequestTimeoutSec   int      `mapstructure:"request_timeout_sec"`    // HTTP read/write; 0 = use server default
	VisualizeTimeoutSec int      `mapstructure:"visualize_timeout_sec"`  // Whole collect/transform/layout pipeline
	ShutdownTimeoutSec  int      `mapstructure:"shutdown_timeout_sec"`   // Graceful shutdown wait
	K8sTimeoutSec       int      `mapstructure:"k8s_timeout_sec"`        // Timeout for each outbound K8s API call; 0 = none
	K8sRateLimitPerSec  float64  `mapstructure:"k8s_rate_limit_per_sec"` // Token bucket rate (req/s); 0 = no limit
	K8sRateLimitBurst   int      `mapstructure:"k8s_rate_limit_burst"`
	SessionMax          int      `mapstructure:"session_max"`            // Max tracked visualize sessions
	SessionTTLSec       int      `mapstructure:"session_ttl_sec"`        // Idle visualize session expiry
	TracingEndpoint     string   `mapstructure:"tracing_endpoint"`       // OTLP endpoint; empty = tracing disabled
	TracingSamplingRate float64  `mapstructure:"tracing_sampling_rate"`
	MaxBodyBytes        int64    `mapstructure:"max_body_bytes"`         // Max Topology create/replace body
}

// Load reads config.yaml (when present) and CLABCONSOLE_* environment variables over the defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/clabconsole/")
	v.AddConfigPath("$HOME/.clabconsole")
	v.AddConfigPath(".")
	return load(v)
}

// LoadFile reads the given config file instead of searching the default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("CLABCONSOLE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("kubeconfig_path", "")
	v.SetDefault("kube_context", "")
	v.SetDefault("request_timeout_sec", 30)
	v.SetDefault("visualize_timeout_sec", 30)
	v.SetDefault("shutdown_timeout_sec", 15)
	v.SetDefault("k8s_timeout_sec", 15)
	v.SetDefault("k8s_rate_limit_per_sec", 0) // 0 = disabled
	v.SetDefault("k8s_rate_limit_burst", 0)
	v.SetDefault("session_max", 1024)
	v.SetDefault("session_ttl_sec", 600)
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_sampling_rate", 1.0)
	v.SetDefault("max_body_bytes", 1<<20)
}

// splitOrigins accepts both a YAML list and a comma separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q (want json or text)", c.LogFormat)
	}
	if c.VisualizeTimeoutSec < 0 || c.K8sTimeoutSec < 0 || c.RequestTimeoutSec < 0 || c.ShutdownTimeoutSec < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.SessionMax <= 0 {
		return fmt.Errorf("session_max must be positive, got %d", c.SessionMax)
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		return fmt.Errorf("tracing_sampling_rate must be within [0,1], got %v", c.TracingSamplingRate)
	}
	return nil
}

// VisualizeTimeout is the pipeline deadline; 0 means none.
func (c *Config) VisualizeTimeout() time.Duration {
	return time.Duration(c.VisualizeTimeoutSec) * time.Second
}

// K8sTimeout is the per-call deadline for cluster API calls; 0 means none.
func (c *Config) K8sTimeout() time.Duration {
	return time.Duration(c.K8sTimeoutSec) * time.Second
}

// SessionTTL is how long an idle visualize session is remembered.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}
