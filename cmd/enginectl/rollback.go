package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRollbackCommand() *cobra.Command {
	var workflowID string
	var toStep string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Compensate completed steps back to a prior step",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}
			if err := rt.engine.Rollback(context.Background(), tc, id, toStep, performedBy(cmd, tc.Actor.ID)); err != nil {
				return err
			}
			cmd.Println(successStyle.Render("Workflow rolled back"))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.Flags().StringVar(&toStep, "to-step", "", "Completed step to roll back to")
	cmd.MarkFlagRequired("workflow-id")
	cmd.MarkFlagRequired("to-step")
	return cmd
}
