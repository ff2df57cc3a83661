package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-rota/pkg/core/services"
)

// RequestSwapCmd creates the requestSwap command
func RequestSwapCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requestSwap <your_assignment_id> <their_assignment_id>",
		Short: "Ask another member to swap assignments with you",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")

			swap, err := app.Swaps.Create(app.Ctx, services.CreateSwapRequest{
				CallerID:              app.CallerID,
				RequesterAssignmentID: args[0],
				TargetAssignmentID:    args[1],
				Reason:                reason,
			})
			if err != nil {
				return err
			}
			fmt.Printf("✓ Swap requested from %s (ID: %s)\n", swap.TargetMemberID, swap.ID)
			return nil
		},
	}

	cmd.Flags().String("reason", "", "Optional note for the other member")

	return cmd
}

// RespondSwapCmd creates the respondSwap command
func RespondSwapCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "respondSwap <swap_id> <accept|reject>",
		Short: "Accept or reject a swap request made to you",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			swap, err := app.Swaps.Respond(app.Ctx, app.CallerID, args[0], services.SwapDecision(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("✓ Swap %s %s\n", swap.ID, swap.Status)
			return nil
		},
	}
}

// CancelSwapCmd creates the cancelSwap command
func CancelSwapCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancelSwap <swap_id>",
		Short: "Withdraw a pending swap request you made",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Swaps.Cancel(app.Ctx, app.CallerID, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Swap %s withdrawn\n", args[0])
			return nil
		},
	}
}

// ListSwapsCmd creates the listSwaps command
func ListSwapsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listSwaps [member_id]",
		Short: "List swap requests a member made or received (defaults to you)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID := app.CallerID
			if len(args) > 0 {
				memberID = args[0]
			}

			swaps, err := app.Swaps.List(app.Ctx, memberID)
			if err != nil {
				return err
			}
			if len(swaps) == 0 {
				fmt.Println("No swap requests.")
				return nil
			}

			fmt.Printf("\n%d swap requests:\n\n", len(swaps))
			for _, s := range swaps {
				direction := "to " + s.TargetMemberID
				if s.TargetMemberID == memberID {
					direction = "from " + s.RequesterMemberID
				}
				fmt.Printf("  %-9s %-20s %s <-> %s  %s (%s)\n",
					s.Status, direction, s.RequesterAssignmentID, s.TargetAssignmentID,
					s.CreatedAt.In(app.Location).Format("2006-01-02 15:04"), s.ID)
				if s.Reason != "" {
					fmt.Printf("            reason: %s\n", s.Reason)
				}
			}
			fmt.Println()
			return nil
		},
	}
}
