package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRejectCommand() *cobra.Command {
	var workflowID string
	var comments string
	var returnToStep string

	cmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject a submitted workflow back to a prior step (market_ops only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}
			if err := rt.engine.Reject(context.Background(), tc, id, comments, returnToStep, performedBy(cmd, tc.Actor.ID)); err != nil {
				return err
			}
			cmd.Println(successStyle.Render("Workflow rejected"))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.Flags().StringVar(&comments, "comments", "", "Reviewer comments recorded on the rejection event")
	cmd.Flags().StringVar(&returnToStep, "return-to-step", "", "Step to return to (defaults to one step back)")
	cmd.MarkFlagRequired("workflow-id")
	return cmd
}
