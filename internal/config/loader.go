package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads, e.g.
// QUERYFLOW_MODEL_API_KEY for model.api_key.
const EnvPrefix = "QUERYFLOW"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// NewLoaderWithViper creates a loader using an existing viper instance, so
// CLI flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads and validates configuration.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (QUERYFLOW_*)
// 3. Project config (.queryflow.yaml in current directory)
// 4. User config (~/.config/queryflow/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v)

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".queryflow")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "queryflow"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// setDefaults registers every key, which also makes each one readable from
// the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.model", "gpt-4o-mini")
	v.SetDefault("model.max_tokens", 4096)
	v.SetDefault("model.timeout", "2m")
	v.SetDefault("model.claude_path", "claude")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "data.db")
	v.SetDefault("database.max_rows", 10000)

	v.SetDefault("schema.path", "schema.yaml")

	v.SetDefault("workflow.max_retries", 3)
	v.SetDefault("workflow.retry_policy", "every_attempt")
	v.SetDefault("workflow.interpret_row_limit", 40)
	v.SetDefault("workflow.timeout", "5m")
	v.SetDefault("workflow.max_steps", 0)

	v.SetDefault("checkpoint.path", ".queryflow/checkpoints.db")
	v.SetDefault("audit.dir", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout", "5m")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "queryflow")
	v.SetDefault("telemetry.metrics", false)

	v.SetDefault("batch.concurrency", 4)
}
