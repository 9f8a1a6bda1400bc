package main

import (
	"context"

	"urbanmove/pkg/config"
	"urbanmove/pkg/ticket"

	"github.com/spf13/cobra"
)

func newTicketCmd(settings config.Settings) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Buy and inspect tickets",
	}
	cmd.PersistentFlags().StringVar(&baseURL, "ticket-url", settings.TicketURL, "ticketing service URL")

	client := func() *ticket.Client { return ticket.NewClient(baseURL, settings.AuthToken) }

	cmd.AddCommand(
		newTicketBuyCmd(client),
		newTicketListCmd(client),
		newTicketGetCmd(client),
	)
	return cmd
}

func newTicketBuyCmd(client func() *ticket.Client) *cobra.Command {
	var (
		user   string
		trajet string
		seat   int
		price  float64
	)

	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Issue a ticket for a user on a trip",
		RunE: withTelemetry(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			t, err := client().Create(ctx, ticket.Reservation{
				UserID:     user,
				TrajetID:   trajet,
				SeatNumber: seat,
				Price:      price,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, t)
		}),
	}

	cmd.Flags().StringVar(&user, "user", "", "user id as issued by the user service (required)")
	cmd.Flags().StringVar(&trajet, "trajet", "", "trip id (required)")
	cmd.Flags().IntVar(&seat, "seat", 0, "seat number")
	cmd.Flags().Float64Var(&price, "price", 0, "ticket price")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("trajet")
	return cmd
}

func newTicketListCmd(client func() *ticket.Client) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's tickets",
		RunE: withTelemetry(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			tickets, err := client().ListForUser(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(cmd, tickets)
		}),
	}

	cmd.Flags().StringVar(&user, "user", "", "user id as issued by the user service (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newTicketGetCmd(client func() *ticket.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <ticket-id>",
		Short: "Show one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: withTelemetry(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			t, err := client().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, t)
		}),
	}
}
