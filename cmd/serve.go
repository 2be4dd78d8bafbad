package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tripweave/orchestrator/api/rest"
	"tripweave/orchestrator/internal/config"
	"tripweave/orchestrator/internal/conflict"
	"tripweave/orchestrator/internal/dispatch"
	"tripweave/orchestrator/internal/escalation"
	"tripweave/orchestrator/internal/orchestrator"
	"tripweave/orchestrator/internal/registry"
	"tripweave/orchestrator/internal/reporter"
	"tripweave/orchestrator/internal/stats"
	"tripweave/orchestrator/internal/workers"
	"tripweave/orchestrator/pkg/logger"
)

var (
	serveAddress  string
	serveBuiltins bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator service",
	Long: `Start the orchestrator with its REST API. Workers register over the
API and receive task invocations over HTTP; with --builtin-workers the
service also runs one in-process worker per capability, which makes a
single node fully self-contained.`,
	Example: `  # self-contained node with built-in workers
  tripweave serve

  # remote workers only, custom address
  tripweave serve --address :9090 --builtin-workers=false

  # with a configuration file
  tripweave serve --config tripweave.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddress, "address", ":8080", "HTTP listen address")
	serveCmd.Flags().BoolVar(&serveBuiltins, "builtin-workers", true, "run one in-process worker per capability")
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("address") {
		cfg.Server.Address = serveAddress
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if logLevel == "" {
		logger.SetLevelFromString(cfg.Logging.Level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.NewInMemoryRegistry(cfg.Registry.MissedHeartbeatLimit)
	local := workers.NewLocalInvoker()
	invoker := dispatch.NewRoutingInvoker(local, dispatch.NewHTTPInvoker())

	if serveBuiltins {
		if _, err := workers.RegisterBuiltins(ctx, reg, local); err != nil {
			return fmt.Errorf("failed to register built-in workers: %w", err)
		}
	}

	collector := stats.NewCollector()

	opts := []orchestrator.Option{orchestrator.WithRecorder(collector)}
	if len(cfg.Conflict.Rules) > 0 {
		rules := make([]conflict.Rule, 0, len(cfg.Conflict.Rules))
		for _, r := range cfg.Conflict.Rules {
			rules = append(rules, conflict.Rule{Name: r.Name, Source: r.Source})
		}
		opts = append(opts, orchestrator.WithRules(
			conflict.NewRuleEngine(rules, cfg.Conflict.RuleTimeout)))
	}

	orch := orchestrator.New(orchestratorConfig(cfg), reg, invoker, opts...)
	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer orch.Stop()

	mgr, err := buildReporters(cfg)
	if err != nil {
		return err
	}
	go mgr.Run(ctx, orch.Subscribe(ctx))
	defer mgr.Wait()

	srv := rest.NewServer(orch, collector, &rest.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		EnableCORS:   cfg.Server.EnableCORS,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if !quiet {
			fmt.Println("\nshutting down...")
		}
		cancel()
	}()

	if !quiet {
		fmt.Printf("tripweave %s\n", Version)
		fmt.Printf("  listening on %s\n", cfg.Server.Address)
		fmt.Printf("  built-in workers: %v\n", serveBuiltins)
		fmt.Printf("  max concurrent runs: %d\n", cfg.Orchestrator.MaxConcurrentRuns)
	}

	return srv.StartWithContext(ctx)
}

// orchestratorConfig maps the service configuration onto the
// orchestrator's own knobs.
func orchestratorConfig(cfg *config.Config) *orchestrator.Config {
	return &orchestrator.Config{
		MaxConcurrentRuns: cfg.Orchestrator.MaxConcurrentRuns,
		SweepInterval:     cfg.Orchestrator.SweepInterval,
		HeartbeatMaxAge:   cfg.Orchestrator.HeartbeatMaxAge,
		Dispatch: &dispatch.Config{
			FanOut:         cfg.Dispatch.FanOut,
			TaskTimeout:    cfg.Dispatch.TaskTimeout,
			RetryLimit:     cfg.Dispatch.RetryLimit,
			RetryBackoff:   cfg.Dispatch.RetryBackoff,
			ResolveTimeout: cfg.Dispatch.ResolveTimeout,
			ResolveBackoff: cfg.Dispatch.ResolveBackoff,
		},
		Conflict: &conflict.Config{
			MaxResolutionAttempts: cfg.Conflict.MaxResolutionAttempts,
		},
		Escalation: &escalation.Config{
			ApprovalTimeout: cfg.Escalation.ApprovalTimeout,
		},
	}
}

func buildReporters(cfg *config.Config) (*reporter.Manager, error) {
	var reps []reporter.Reporter
	if cfg.Reporting.Console {
		reps = append(reps, reporter.NewConsoleReporter())
	}
	if cfg.Reporting.Webhook.URL != "" {
		wh, err := reporter.NewWebhookReporter(&reporter.WebhookConfig{
			URL:           cfg.Reporting.Webhook.URL,
			BatchSize:     cfg.Reporting.Webhook.BatchSize,
			RetryAttempts: cfg.Reporting.Webhook.RetryAttempts,
			RetryDelay:    cfg.Reporting.Webhook.RetryDelay,
			Timeout:       cfg.Reporting.Webhook.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build webhook reporter: %w", err)
		}
		reps = append(reps, wh)
	}
	return reporter.NewManager(reps...), nil
}
