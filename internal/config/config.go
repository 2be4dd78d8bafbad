// Package config loads the orchestrator configuration from defaults, a
// YAML file, environment variables and command-line overrides, in that
// precedence order.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for the orchestrator service.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Conflict     ConflictConfig     `yaml:"conflict"`
	Escalation   EscalationConfig   `yaml:"escalation"`
	Registry     RegistryConfig     `yaml:"registry"`
	Reporting    ReportingConfig    `yaml:"reporting"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"TW_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"TW_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"TW_SERVER_WRITE_TIMEOUT"`
	EnableCORS   bool          `yaml:"enable_cors" env:"TW_SERVER_ENABLE_CORS"`
}

// OrchestratorConfig holds run-lifecycle configuration.
type OrchestratorConfig struct {
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs" env:"TW_MAX_CONCURRENT_RUNS"`
	SweepInterval     time.Duration `yaml:"sweep_interval" env:"TW_SWEEP_INTERVAL"`
	HeartbeatMaxAge   time.Duration `yaml:"heartbeat_max_age" env:"TW_HEARTBEAT_MAX_AGE"`
}

// DispatchConfig holds task dispatch configuration.
type DispatchConfig struct {
	FanOut         int           `yaml:"fan_out" env:"TW_DISPATCH_FAN_OUT"`
	TaskTimeout    time.Duration `yaml:"task_timeout" env:"TW_DISPATCH_TASK_TIMEOUT"`
	RetryLimit     int           `yaml:"retry_limit" env:"TW_DISPATCH_RETRY_LIMIT"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" env:"TW_DISPATCH_RETRY_BACKOFF"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout" env:"TW_DISPATCH_RESOLVE_TIMEOUT"`
	ResolveBackoff time.Duration `yaml:"resolve_backoff" env:"TW_DISPATCH_RESOLVE_BACKOFF"`
}

// ConflictConfig holds conflict resolution configuration.
type ConflictConfig struct {
	MaxResolutionAttempts int           `yaml:"max_resolution_attempts" env:"TW_CONFLICT_MAX_ATTEMPTS"`
	RuleTimeout           time.Duration `yaml:"rule_timeout" env:"TW_CONFLICT_RULE_TIMEOUT"`
	Rules                 []RuleConfig  `yaml:"rules,omitempty"`
}

// RuleConfig is one custom conflict rule script.
type RuleConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// EscalationConfig holds approval gate configuration.
type EscalationConfig struct {
	ApprovalTimeout time.Duration `yaml:"approval_timeout" env:"TW_APPROVAL_TIMEOUT"`
}

// RegistryConfig holds worker registry configuration.
type RegistryConfig struct {
	MissedHeartbeatLimit int `yaml:"missed_heartbeat_limit" env:"TW_MISSED_HEARTBEAT_LIMIT"`
}

// ReportingConfig holds event reporting configuration.
type ReportingConfig struct {
	Console bool          `yaml:"console" env:"TW_REPORT_CONSOLE"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig holds webhook reporter configuration.
type WebhookConfig struct {
	URL           string        `yaml:"url" env:"TW_WEBHOOK_URL"`
	BatchSize     int           `yaml:"batch_size" env:"TW_WEBHOOK_BATCH_SIZE"`
	RetryAttempts int           `yaml:"retry_attempts" env:"TW_WEBHOOK_RETRY_ATTEMPTS"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"TW_WEBHOOK_RETRY_DELAY"`
	Timeout       time.Duration `yaml:"timeout" env:"TW_WEBHOOK_TIMEOUT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"TW_LOG_LEVEL"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentRuns: 10,
			SweepInterval:     10 * time.Second,
			HeartbeatMaxAge:   15 * time.Second,
		},
		Dispatch: DispatchConfig{
			FanOut:         5,
			TaskTimeout:    30 * time.Second,
			RetryLimit:     2,
			RetryBackoff:   time.Second,
			ResolveTimeout: time.Minute,
			ResolveBackoff: 500 * time.Millisecond,
		},
		Conflict: ConflictConfig{
			MaxResolutionAttempts: 3,
			RuleTimeout:           5 * time.Second,
		},
		Escalation: EscalationConfig{
			ApprovalTimeout: 10 * time.Minute,
		},
		Registry: RegistryConfig{
			MissedHeartbeatLimit: 3,
		},
		Reporting: ReportingConfig{
			Console: true,
			Webhook: WebhookConfig{
				BatchSize:     10,
				RetryAttempts: 3,
				RetryDelay:    time.Second,
				Timeout:       10 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{cmdArgs: make(map[string]string)}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets command-line overrides in dot-notation
// ("dispatch.fan_out" -> "8").
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("failed to set config value %s: %w", key, err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. A missing file is not
// an error; the defaults stand.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnvToStruct recursively applies env-tagged overrides to struct
// fields.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by dot-notation path.
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		normalized := strings.ReplaceAll(part, "_", "")
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, normalized) || strings.EqualFold(name, part)
		})
		if !field.IsValid() {
			return fmt.Errorf("unknown config path: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("expected %s to be a section, got %s", part, field.Kind())
		}
		v = field
	}
	return nil
}

// setFieldValue sets a reflect.Value from its string form.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}
	return nil
}
