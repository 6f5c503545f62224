package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newExecuteStepCommand() *cobra.Command {
	var workflowID string
	var stepID string
	var data string

	cmd := &cobra.Command{
		Use:   "execute-step",
		Short: "Run one step of a workflow instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}
			payload, err := parseJSONInput(data)
			if err != nil {
				return err
			}

			result, err := rt.engine.ExecuteStep(context.Background(), tc, id, stepID, payload, performedBy(cmd, tc.Actor.ID))
			if err != nil {
				return err
			}

			if result.Paused {
				cmd.Println(successStyle.Render("Step suspended, awaiting external input"))
				return nil
			}
			cmd.Println(successStyle.Render("Step completed"))
			cmd.Printf("%s %s\n", labelStyle.Render("Status:"), formatStatus(result.Status))
			if result.NextStepID != "" {
				cmd.Printf("%s %s\n", labelStyle.Render("Next Step:"), result.NextStepID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.Flags().StringVar(&stepID, "step-id", "", "Step to execute")
	cmd.Flags().StringVar(&data, "data", "{}", "Step input as JSON, a file path, or file://path")
	cmd.MarkFlagRequired("workflow-id")
	cmd.MarkFlagRequired("step-id")

	return cmd
}
