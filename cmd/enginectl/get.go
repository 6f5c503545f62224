package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newGetCommand() *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a workflow instance's full projected state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}

			instance, err := rt.state.Get(context.Background(), tc, id)
			if err != nil {
				return err
			}

			cmd.Println(headerStyle.Render("Workflow instance"))
			cmd.Println(renderInstanceDetails(instance))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.MarkFlagRequired("workflow-id")
	return cmd
}
