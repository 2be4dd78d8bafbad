package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tripweave/orchestrator/api/rest/client"
	"tripweave/orchestrator/internal/workers"
	"tripweave/orchestrator/pkg/types"
)

var (
	workerCapability   string
	workerID           string
	workerAddress      string
	workerAdvertise    string
	workerOrchestrator string
	workerHeartbeat    time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a standalone worker node",
	Long: `Run one capability worker as its own HTTP service. The worker
registers with a remote orchestrator, sends periodic heartbeats and
serves task invocations on /invoke until stopped.`,
	Example: `  tripweave worker --capability hotel
  tripweave worker --capability activity --address :9101 \
      --advertise http://10.0.0.5:9101 --orchestrator http://10.0.0.1:8080`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerCapability, "capability", "", "capability to serve (hotel, transport, activity, budget, itinerary)")
	workerCmd.Flags().StringVar(&workerID, "id", "", "worker id (auto-generated if empty)")
	workerCmd.Flags().StringVar(&workerAddress, "address", ":9100", "HTTP listen address")
	workerCmd.Flags().StringVar(&workerAdvertise, "advertise", "", "endpoint the orchestrator should invoke (defaults to http://localhost<address>)")
	workerCmd.Flags().StringVar(&workerOrchestrator, "orchestrator", "http://localhost:8080", "orchestrator base URL")
	workerCmd.Flags().DurationVar(&workerHeartbeat, "heartbeat-interval", 5*time.Second, "interval between heartbeats")

	workerCmd.MarkFlagRequired("capability")
}

func runWorker(cmd *cobra.Command, args []string) error {
	capability := types.Capability(workerCapability)
	w := workers.ByCapability(capability)
	if w == nil {
		return fmt.Errorf("unknown capability: %s", workerCapability)
	}

	id := workerID
	if id == "" {
		id = fmt.Sprintf("%s-%s", capability, uuid.New().String()[:8])
	}
	endpoint := workerAdvertise
	if endpoint == "" {
		endpoint = "http://localhost" + workerAddress
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl := client.New(&client.Config{
		OrchestratorURL: workerOrchestrator,
		Worker: types.WorkerDescriptor{
			ID:         id,
			Capability: capability,
			Endpoint:   endpoint,
		},
		HeartbeatInterval: workerHeartbeat,
		RequestTimeout:    10 * time.Second,
	})

	if err := cl.Register(ctx); err != nil {
		return err
	}
	if err := cl.StartHeartbeat(ctx); err != nil {
		return err
	}
	defer func() {
		if err := cl.Unregister(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "unregister failed: %v\n", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if !quiet {
			fmt.Println("\nstopping worker...")
		}
		cancel()
	}()

	if !quiet {
		fmt.Printf("worker %s serving %s on %s (endpoint %s)\n", id, capability, workerAddress, endpoint)
	}

	return workers.NewServer(w).Start(ctx, workerAddress)
}
