package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newApproveCommand() *cobra.Command {
	var workflowID string
	var comments string

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a submitted workflow (market_ops only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}
			if err := rt.engine.Approve(context.Background(), tc, id, comments, performedBy(cmd, tc.Actor.ID)); err != nil {
				return err
			}
			cmd.Println(successStyle.Render("Workflow approved"))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.Flags().StringVar(&comments, "comments", "", "Reviewer comments recorded on the completion event")
	cmd.MarkFlagRequired("workflow-id")
	return cmd
}
