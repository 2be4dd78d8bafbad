package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gopkg.in/yaml.v3"
)

// TestConfigFileRoundTripProperty checks that any valid configuration
// written as YAML loads back with the same values.
func TestConfigFileRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	tmpDir := t.TempDir()
	var seq int

	properties.Property("file round-trip preserves values", prop.ForAll(
		func(cfg *Config) bool {
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return false
			}
			seq++
			path := filepath.Join(tmpDir, fmt.Sprintf("config-%d.yaml", seq))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return false
			}

			loaded, err := NewLoader().WithConfigPath(path).Load()
			if err != nil {
				return false
			}
			return loaded.Server == cfg.Server &&
				loaded.Orchestrator == cfg.Orchestrator &&
				loaded.Dispatch == cfg.Dispatch &&
				loaded.Escalation == cfg.Escalation &&
				loaded.Registry == cfg.Registry
		},
		genConfig(),
	))

	properties.TestingRun(t)
}

// TestCmdArgsOverrideProperty checks that dot-notation overrides always win
// over generated file values.
func TestCmdArgsOverrideProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("cmd args take precedence", prop.ForAll(
		func(fanOut int, timeoutSec int) bool {
			loaded, err := NewLoader().WithCmdArgs(map[string]string{
				"dispatch.fan_out":      fmt.Sprintf("%d", fanOut),
				"dispatch.task_timeout": fmt.Sprintf("%ds", timeoutSec),
			}).Load()
			if err != nil {
				return false
			}
			return loaded.Dispatch.FanOut == fanOut &&
				loaded.Dispatch.TaskTimeout == time.Duration(timeoutSec)*time.Second
		},
		gen.IntRange(1, 64),
		gen.IntRange(1, 600),
	))

	properties.TestingRun(t)
}

// genConfig generates a valid configuration.
func genConfig() gopter.Gen {
	return gopter.CombineGens(
		genServerConfig(),
		genDispatchConfig(),
		gen.IntRange(1, 100),
		gen.IntRange(1, 60),
		gen.IntRange(1, 10),
	).Map(func(values []interface{}) *Config {
		cfg := DefaultConfig()
		cfg.Server = values[0].(ServerConfig)
		cfg.Dispatch = values[1].(DispatchConfig)
		cfg.Orchestrator.MaxConcurrentRuns = values[2].(int)
		cfg.Escalation.ApprovalTimeout = time.Duration(values[3].(int)) * time.Minute
		cfg.Registry.MissedHeartbeatLimit = values[4].(int)
		return cfg
	})
}

// genServerConfig generates a server configuration.
func genServerConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1024, 65535),
		gen.IntRange(1, 120),
		gen.IntRange(1, 120),
		gen.Bool(),
	).Map(func(values []interface{}) ServerConfig {
		return ServerConfig{
			Address:      fmt.Sprintf(":%d", values[0].(int)),
			ReadTimeout:  time.Duration(values[1].(int)) * time.Second,
			WriteTimeout: time.Duration(values[2].(int)) * time.Second,
			EnableCORS:   values[3].(bool),
		}
	})
}

// genDispatchConfig generates a dispatch configuration.
func genDispatchConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1, 64),
		gen.IntRange(1, 300),
		gen.IntRange(0, 5),
		gen.IntRange(1, 30),
	).Map(func(values []interface{}) DispatchConfig {
		return DispatchConfig{
			FanOut:         values[0].(int),
			TaskTimeout:    time.Duration(values[1].(int)) * time.Second,
			RetryLimit:     values[2].(int),
			RetryBackoff:   time.Duration(values[3].(int)) * time.Second,
			ResolveTimeout: time.Minute,
			ResolveBackoff: 500 * time.Millisecond,
		}
	})
}
