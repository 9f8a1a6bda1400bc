package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"urbanmove/pkg/config"
	"urbanmove/pkg/feed"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newFeedCmd(settings config.Settings) *cobra.Command {
	var (
		addr      string
		siriFile  string
		apiKey    string
		datasetID string
		lineRef   string
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Serve a development GPS feed built from SIRI-VM data",
		Long: `Serves GPS_UPDATE envelopes on ws://<addr>/ws/gps, the same contract as
the bus service, from a SIRI-VM snapshot file or the live Bus Open Data Service.`,
		RunE: withTelemetry(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			var source feed.Source
			switch {
			case siriFile != "":
				source = feed.FileSource{Path: siriFile}
			case apiKey != "":
				source = feed.NewBODSSource(apiKey, datasetID, lineRef)
			default:
				return errors.New("either --siri-file or --bods-api-key is required")
			}

			return runFeed(ctx, addr, source, interval)
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", ":8084", "listen address (host:port)")
	cmd.Flags().StringVar(&siriFile, "siri-file", "", "SIRI-VM snapshot file, re-read on every poll")
	cmd.Flags().StringVar(&apiKey, "bods-api-key", settings.BODSAPIKey, "BODS API key for live data")
	cmd.Flags().StringVar(&datasetID, "dataset-id", settings.BODSDatasetID, "BODS dataset id")
	cmd.Flags().StringVar(&lineRef, "line-ref", "", "BODS line reference (empty for the whole dataset)")
	cmd.Flags().DurationVar(&interval, "interval", feed.DefaultPollInterval, "polling interval")
	return cmd
}

func runFeed(ctx context.Context, addr string, source feed.Source, interval time.Duration) error {
	logger := slog.Default()
	hub := feed.NewHub(logger)

	mux := http.NewServeMux()
	mux.Handle("/ws/gps", hub)
	mux.Handle("/healthz", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok %d subscribers\n", hub.Subscribers())
	}), "healthz"))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Feed server listening", "addr", addr, "source", source.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	pollErr := make(chan error, 1)
	go func() { pollErr <- feed.NewPoller(source, hub, interval, logger).Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-serverErr:
		runErr = fmt.Errorf("feed server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down feed server", "error", err)
	}
	if errors.Is(runErr, context.Canceled) {
		<-pollErr
	}
	return runErr
}
