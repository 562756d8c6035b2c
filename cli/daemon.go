package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/fedasyncd"
	"github.com/absmach/fedasync/pkg/models/logreg"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

const simEnvPrefix = "SIM_"

func NewCoordinatorCmd() *cobra.Command {
	var runFile string

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start coordinator",
		Long:  `Start the coordinator configured from COORDINATOR_ environment variables and an optional TOML run file.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, srv, run, err := fedasyncd.LoadCoordinatorConfig(runFile)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := fedasyncd.StartCoordinator(ctx, cancel, cfg, srv, run); err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}
	startCmd.Flags().StringVarP(&runFile, "config", "c", "", "TOML run configuration file")

	cmd := &cobra.Command{
		Use:   "coordinator [start]",
		Short: "Coordinator management",
		Long:  `Run the federated learning coordinator.`,
	}
	cmd.AddCommand(startCmd)

	return cmd
}

func NewClientCmd() *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start client",
		Long:  `Start a training client configured from CLIENT_ environment variables.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := fedasyncd.LoadClientConfig()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := fedasyncd.StartClient(ctx, cancel, cfg); err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}

	cmd := &cobra.Command{
		Use:   "client [start]",
		Short: "Client management",
		Long:  `Run a federated learning client.`,
	}
	cmd.AddCommand(startCmd)

	return cmd
}

func NewSimulateCmd() *cobra.Command {
	var (
		clients  int
		runFile  string
		timeout  time.Duration
		poll     time.Duration
		verbose  bool
		artifact string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a run",
		Long: `Run a coordinator and several clients in one process over an in-memory broker.

Examples:
  # Five clients with the default run parameters
  fedasyncd simulate --clients 5

  # Run parameters from a file, overridden by SIM_RUN_ variables
  SIM_RUN_N_EPOCHS=20 fedasyncd simulate -c run.toml`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			run, err := coordinator.LoadConfig(runFile, simEnvPrefix+"RUN_")
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			var model logreg.Config
			if err := env.ParseWithOptions(&model, env.Options{Prefix: simEnvPrefix + "MODEL_"}); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			out := io.Discard
			if verbose {
				out = os.Stderr
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := fedasyncd.Simulate(ctx, fedasyncd.SimulateConfig{
				Clients:      clients,
				Run:          run,
				Model:        model,
				PollInterval: poll,
				ArtifactRoot: artifact,
				Logger:       slog.New(slog.NewTextHandler(out, nil)),
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
		},
	}

	cmd.Flags().IntVarP(&clients, "clients", "n", 3, "Number of simulated clients")
	cmd.Flags().StringVarP(&runFile, "config", "c", "", "TOML run configuration file")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Minute, "Abort the simulation after this long")
	cmd.Flags().DurationVar(&poll, "poll-interval", 10*time.Millisecond, "Client and coordinator poll interval")
	cmd.Flags().StringVar(&artifact, "artifacts", "", "Directory keeping the round artifacts, temporary when empty")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log protocol events to stderr")

	return cmd
}
