// Command urbanmove is the command-line client for the UrbanMove transit
// platform: stable user identities, ticket purchase, live bus tracking and a
// development GPS feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"urbanmove/pkg/config"
	"urbanmove/pkg/identity"
	"urbanmove/pkg/logging"
	"urbanmove/pkg/metrics"
	"urbanmove/pkg/otel"
	"urbanmove/pkg/profiling"
	"urbanmove/pkg/tracing"

	"github.com/spf13/cobra"
)

func main() {
	settings, err := loadSettings(os.Getenv("URBANMOVE_ENV_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:           "urbanmove",
		Short:         "UrbanMove transit platform client",
		Version:       otel.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newUUIDCmd(),
		newTrackCmd(settings),
		newTicketCmd(settings),
		newFeedCmd(settings),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings reads the env file, then configures logging so LOG_LEVEL and
// LOG_FORMAT set there take effect.
func loadSettings(envFile string) (config.Settings, error) {
	settings, err := config.Load(envFile)
	if err != nil {
		return config.Settings{}, err
	}
	logging.InitLogging()
	return settings, nil
}

func newUUIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uuid <user-id>...",
		Short: "Print the stable ticketing UUID for each user id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range args {
				id, err := identity.StableUUIDString(raw)
				if err != nil {
					return fmt.Errorf("user id %q: %w", raw, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// withTelemetry runs fn with tracing, metrics and profiling initialised and
// a context cancelled on SIGINT or SIGTERM.
func withTelemetry(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		shutdownTracing, err := tracing.InitTracing()
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer shutdownTracing()

		shutdownMetrics, err := metrics.InitMetrics()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer shutdownMetrics()

		shutdownProfiling, err := profiling.InitProfiling()
		if err != nil {
			return fmt.Errorf("failed to initialize profiling: %w", err)
		}
		defer shutdownProfiling()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		err = fn(ctx, cmd, args)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Info("Shutdown complete")
			return nil
		}
		return err
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
