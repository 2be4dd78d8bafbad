package config

import (
	"fmt"
	"strings"
)

// ValidationError reports one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config field '%s': %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one pass.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the whole configuration and returns every violation
// found, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Server.Address == "" {
		errs = append(errs, &ValidationError{"server.address", "address is required"})
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, &ValidationError{"server.read_timeout", "must be positive"})
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, &ValidationError{"server.write_timeout", "must be positive"})
	}

	if c.Orchestrator.MaxConcurrentRuns < 1 {
		errs = append(errs, &ValidationError{"orchestrator.max_concurrent_runs", "must be at least 1"})
	}
	if c.Orchestrator.SweepInterval <= 0 {
		errs = append(errs, &ValidationError{"orchestrator.sweep_interval", "must be positive"})
	}
	if c.Orchestrator.HeartbeatMaxAge <= 0 {
		errs = append(errs, &ValidationError{"orchestrator.heartbeat_max_age", "must be positive"})
	}

	if c.Dispatch.FanOut < 1 {
		errs = append(errs, &ValidationError{"dispatch.fan_out", "must be at least 1"})
	}
	if c.Dispatch.TaskTimeout <= 0 {
		errs = append(errs, &ValidationError{"dispatch.task_timeout", "must be positive"})
	}
	if c.Dispatch.RetryLimit < 0 {
		errs = append(errs, &ValidationError{"dispatch.retry_limit", "cannot be negative"})
	}
	if c.Dispatch.RetryBackoff <= 0 {
		errs = append(errs, &ValidationError{"dispatch.retry_backoff", "must be positive"})
	}

	if c.Conflict.MaxResolutionAttempts < 1 {
		errs = append(errs, &ValidationError{"conflict.max_resolution_attempts", "must be at least 1"})
	}
	for i, rule := range c.Conflict.Rules {
		if rule.Name == "" {
			errs = append(errs, &ValidationError{
				fmt.Sprintf("conflict.rules[%d].name", i), "name is required"})
		}
		if rule.Source == "" {
			errs = append(errs, &ValidationError{
				fmt.Sprintf("conflict.rules[%d].source", i), "source is required"})
		}
	}

	if c.Escalation.ApprovalTimeout <= 0 {
		errs = append(errs, &ValidationError{"escalation.approval_timeout", "must be positive"})
	}

	if c.Registry.MissedHeartbeatLimit < 1 {
		errs = append(errs, &ValidationError{"registry.missed_heartbeat_limit", "must be at least 1"})
	}

	if c.Reporting.Webhook.URL != "" {
		if c.Reporting.Webhook.BatchSize < 1 {
			errs = append(errs, &ValidationError{"reporting.webhook.batch_size", "must be at least 1"})
		}
		if c.Reporting.Webhook.Timeout <= 0 {
			errs = append(errs, &ValidationError{"reporting.webhook.timeout", "must be positive"})
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, &ValidationError{"logging.level", "must be one of debug, info, warn, error"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
