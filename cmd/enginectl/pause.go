package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newPauseCommand() *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause a workflow instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}
			if err := rt.engine.Pause(context.Background(), tc, id, performedBy(cmd, tc.Actor.ID)); err != nil {
				return err
			}
			cmd.Println(successStyle.Render("Workflow paused"))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.MarkFlagRequired("workflow-id")
	return cmd
}
