package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kitchenwatch/internal/dispatch"
)

var sendCmd = &cobra.Command{
	Use:   "send <message...>",
	Short: "Send a one-off message to the target group",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(logger)
		if err != nil {
			return err
		}
		defer svc.close()

		ctx := cmd.Context()
		if err := svc.connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		receipt, err := svc.dispatcher.Send(ctx, strings.Join(args, " "))
		if err != nil {
			if errors.Is(err, dispatch.ErrUnverified) {
				// Unknown outcome, not a confirmed failure.
				fmt.Println("Send could not be verified; the message may still have been delivered.")
				return nil
			}
			return err
		}

		fmt.Printf("Sent via %s (id %s)\n", receipt.Strategy, receipt.ID)
		if receipt.DeliveryConfirmed {
			fmt.Println("Delivery confirmed in the conversation transcript.")
		}
		return nil
	},
}
