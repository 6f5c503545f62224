package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newCancelCommand() *cobra.Command {
	var workflowID string
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a workflow instance without compensating completed steps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}
			if err := rt.engine.Cancel(context.Background(), tc, id, reason, performedBy(cmd, tc.Actor.ID)); err != nil {
				return err
			}
			cmd.Println(successStyle.Render("Workflow cancelled"))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the cancellation event")
	cmd.MarkFlagRequired("workflow-id")
	return cmd
}
