package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tripweave/orchestrator/internal/orchestrator"
	"tripweave/orchestrator/internal/registry"
	"tripweave/orchestrator/internal/workers"
	"tripweave/orchestrator/pkg/types"
)

var (
	planTimeout     time.Duration
	planAutoApprove bool
	planOutJSON     string
)

var planCmd = &cobra.Command{
	Use:   "plan <request.yaml>",
	Short: "Plan one trip in standalone mode",
	Long: `Plan a single trip in-process with the built-in workers, without
starting the service. The request file is a YAML trip request. When a
conflict escalates, --auto-approve accepts the first proposed
resolution; otherwise the run fails with the unresolved conflict.`,
	Example: `  tripweave plan trip.yaml
  tripweave plan --auto-approve --out-json itinerary.json trip.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().DurationVar(&planTimeout, "timeout", 2*time.Minute, "overall planning timeout")
	planCmd.Flags().BoolVar(&planAutoApprove, "auto-approve", false, "accept the first proposed resolution on escalation")
	planCmd.Flags().StringVar(&planOutJSON, "out-json", "", "write the final itinerary to a JSON file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	req, err := loadRequest(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), planTimeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\naborting...")
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg := orchestrator.DefaultConfig()
	if planAutoApprove {
		// The auto-approver below settles requests immediately, but a
		// short deadline keeps an unexpected stall from hanging the run.
		cfg.Escalation.ApprovalTimeout = planTimeout
	} else {
		cfg.Escalation.ApprovalTimeout = 5 * time.Second
	}

	reg := registry.NewInMemoryRegistry(3)
	local := workers.NewLocalInvoker()
	if _, err := workers.RegisterBuiltins(ctx, reg, local); err != nil {
		return fmt.Errorf("failed to register built-in workers: %w", err)
	}

	orch := orchestrator.New(cfg, reg, local)
	if err := orch.Start(); err != nil {
		return err
	}
	defer orch.Stop()

	runID, err := orch.Submit(req)
	if err != nil {
		return fmt.Errorf("failed to submit request: %w", err)
	}

	if !quiet {
		printPlanHeader(req, runID)
	}

	state, err := waitForRun(ctx, orch, runID)
	if err != nil {
		return err
	}

	switch state.Status {
	case types.RunStatusCompleted:
		if !quiet {
			printItinerary(state.Itinerary)
		}
	case types.RunStatusFailed:
		return fmt.Errorf("planning failed: %s", state.Reason)
	case types.RunStatusAborted:
		return fmt.Errorf("planning aborted")
	default:
		return fmt.Errorf("planning did not finish (status %s)", state.Status)
	}

	if planOutJSON != "" {
		data, err := json.MarshalIndent(state.Itinerary, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(planOutJSON, data, 0644); err != nil {
			return fmt.Errorf("failed to write itinerary: %w", err)
		}
		if !quiet {
			fmt.Printf("\nitinerary written to %s\n", planOutJSON)
		}
	}
	return nil
}

// loadRequest parses a YAML trip request from disk.
func loadRequest(path string) (*types.TripRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	var req types.TripRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request file: %w", err)
	}
	return &req, nil
}

// waitForRun polls the run until it reaches a terminal status, settling
// escalations along the way when auto-approve is on.
func waitForRun(ctx context.Context, orch *orchestrator.Orchestrator, runID string) (*types.RunState, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	lastStatus := types.RunStatus("")
	for {
		select {
		case <-ctx.Done():
			orch.Abort(runID)
			return nil, fmt.Errorf("planning timed out or was interrupted")

		case <-ticker.C:
			state, err := orch.Status(runID)
			if err != nil {
				return nil, err
			}
			if !quiet && state.Status != lastStatus {
				fmt.Printf("  status: %s\n", state.Status)
				lastStatus = state.Status
			}

			if state.Status == types.RunStatusPendingApproval {
				settlePending(orch, runID)
			}

			switch state.Status {
			case types.RunStatusCompleted, types.RunStatusFailed, types.RunStatusAborted:
				return state, nil
			}
		}
	}
}

// settlePending decides open approval requests for the run. With
// auto-approve on it picks the first proposal (or approves as-is when
// there is none); decisions are left to expire otherwise.
func settlePending(orch *orchestrator.Orchestrator, runID string) {
	for _, appr := range orch.Approvals(runID) {
		if appr.Decision != types.DecisionPending {
			continue
		}
		if !planAutoApprove {
			if !quiet {
				fmt.Printf("  escalated: %s (no --auto-approve; letting it expire)\n", appr.Conflict.Kind)
			}
			continue
		}
		chosen := -1
		if len(appr.Proposed) > 0 {
			chosen = 0
		}
		if _, err := orch.Decide(appr.ID, types.DecisionApproved, chosen); err == nil && !quiet {
			fmt.Printf("  auto-approved: %s\n", appr.Conflict.Kind)
		}
	}
}

func printPlanHeader(req *types.TripRequest, runID string) {
	fmt.Printf("tripweave %s\n\n", Version)
	fmt.Printf("  run: %s\n", runID)
	fmt.Printf("  trip: %s -> %s\n", req.Origin, req.Destination)
	fmt.Printf("  dates: %s to %s (%d nights)\n",
		req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"), req.Nights())
	fmt.Printf("  travelers: %d\n", req.Travelers)
	if req.Budget > 0 {
		fmt.Printf("  budget: %.2f %s\n", req.Budget, currencyOrDefault(req.Currency))
	}
	fmt.Println()
}

func printItinerary(it *types.Itinerary) {
	if it == nil {
		return
	}
	fmt.Println()
	fmt.Println("  itinerary:")
	if it.Hotel != nil {
		fmt.Printf("    hotel......: %s (%.2f)\n", it.Hotel.Name, it.Hotel.TotalCost)
	}
	if it.Transport != nil {
		fmt.Printf("    transport..: %s (%.2f)\n", it.Transport.Name, it.Transport.TotalCost)
	}
	for _, act := range it.Activities {
		fmt.Printf("    activity...: %s (%.2f)\n", act.Name, act.TotalCost)
	}
	fmt.Printf("    total......: %.2f\n", it.TotalCost)
	for _, note := range it.Notes {
		fmt.Printf("    note: %s\n", note)
	}
	fmt.Println()
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}
