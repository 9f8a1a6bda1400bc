package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"urbanmove/pkg/config"
	"urbanmove/pkg/recorder"
	"urbanmove/pkg/tracking"

	"github.com/spf13/cobra"
)

func newTrackCmd(settings config.Settings) *cobra.Command {
	var (
		target       string
		trackingURL  string
		dryRun       bool
		duration     time.Duration
		interval     time.Duration
		baseDelay    time.Duration
		maxAttempts  int
		lokiURL      string
		lokiUser     string
		lokiPassword string
	)

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Record live bus positions for a ticket or line",
		Long: `Connects to the live tracking feed for a target and records every
position it receives, either to Grafana Loki or, with --dry-run, to stdout.
Exits with an error once reconnection attempts are exhausted.`,
		RunE: withTelemetry(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			var header http.Header
			if settings.AuthToken != "" {
				header = http.Header{"Authorization": []string{"Bearer " + settings.AuthToken}}
			}

			client := tracking.New(tracking.Config{
				BaseURL:     trackingURL,
				BaseDelay:   baseDelay,
				MaxAttempts: maxAttempts,
				Header:      header,
			})

			rec, err := recorder.New(recorder.Config{
				TargetID:     target,
				DryRun:       dryRun,
				LokiURL:      lokiURL,
				LokiUser:     lokiUser,
				LokiPassword: lokiPassword,
				Interval:     interval,
			}, client)
			if err != nil {
				return err
			}

			if dryRun {
				slog.Info("Starting tracking recorder in DRY RUN mode", "target_id", target, "url", trackingURL)
			} else {
				slog.Info("Starting tracking recorder", "target_id", target, "url", trackingURL, "loki_url", lokiURL)
			}
			return rec.Run(ctx)
		}),
	}

	cmd.Flags().StringVar(&target, "target", "", "ticket or line id to track (required)")
	cmd.Flags().StringVar(&trackingURL, "url", settings.TrackingURL, "tracking WebSocket URL")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print positions to stdout instead of sending to Loki")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", settings.FlushInterval, "flush interval")
	cmd.Flags().DurationVar(&baseDelay, "reconnect-delay", settings.ReconnectBaseDelay, "base reconnect delay, doubled per attempt")
	cmd.Flags().IntVar(&maxAttempts, "reconnect-attempts", settings.ReconnectMaxAttempts, "reconnect attempts before giving up")
	cmd.Flags().StringVar(&lokiURL, "loki-url", settings.LokiURL, "Grafana Loki URL")
	cmd.Flags().StringVar(&lokiUser, "loki-user", settings.LokiUser, "Loki username (Grafana Cloud)")
	cmd.Flags().StringVar(&lokiPassword, "loki-password", settings.LokiPassword, "Loki password or token (Grafana Cloud)")
	cmd.MarkFlagRequired("target")

	return cmd
}
