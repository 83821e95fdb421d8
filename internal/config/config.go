// Package config loads queryflow configuration from defaults, a YAML file,
// QUERYFLOW_* environment variables and command-line flags.
package config

import (
	"time"

	"github.com/randalmurphal/queryflow/pkg/queryflow/llm"
)

// Config holds the complete application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Model      llm.ModelConfig  `mapstructure:"model"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Schema     SchemaConfig     `mapstructure:"schema"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Server     ServerConfig     `mapstructure:"server"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Batch      BatchConfig      `mapstructure:"batch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=auto text json"`
}

// Supported database drivers. DriverPGX uses a native pgx pool; the others
// go through database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

// DatabaseConfig configures the data store queries run against.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres pgx"`
	DSN    string `mapstructure:"dsn" validate:"required"`
	// MaxRows caps rows read per query. Zero reads every row.
	MaxRows int `mapstructure:"max_rows" validate:"gte=0"`
}

// SchemaConfig locates the column description given to the model.
type SchemaConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// WorkflowConfig configures each run.
type WorkflowConfig struct {
	MaxRetries        int           `mapstructure:"max_retries" validate:"min=1,max=10"`
	RetryPolicy       string        `mapstructure:"retry_policy" validate:"oneof=every_attempt failures_only"`
	InterpretRowLimit int           `mapstructure:"interpret_row_limit" validate:"min=1"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxSteps          int           `mapstructure:"max_steps" validate:"gte=0"`
}

// CheckpointConfig configures the checkpoint store. An empty path disables
// checkpointing.
type CheckpointConfig struct {
	Path string `mapstructure:"path"`
}

// Enabled reports whether runs are checkpointed.
func (c CheckpointConfig) Enabled() bool {
	return c.Path != ""
}

// AuditConfig configures the audit side-files. An empty dir disables them.
type AuditConfig struct {
	Dir string `mapstructure:"dir"`
}

// Enabled reports whether results are written to the audit dir.
func (c AuditConfig) Enabled() bool {
	return c.Dir != ""
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required,hostname_port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint" validate:"omitempty,url"`
	ServiceName string `mapstructure:"service_name" validate:"required"`
	Metrics     bool   `mapstructure:"metrics"`
}

// BatchConfig configures batch runs.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"min=1,max=64"`
}
