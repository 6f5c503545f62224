package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Re-run validation across a workflow's completed steps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}
			report, err := rt.engine.Validate(context.Background(), tc, id)
			if err != nil {
				return err
			}
			if report.Valid {
				cmd.Println(successStyle.Render("Workflow is valid"))
				return nil
			}
			cmd.Println(errorStyle.Render("Workflow failed validation"))
			for _, e := range report.Errors {
				cmd.Printf("  - %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.MarkFlagRequired("workflow-id")
	return cmd
}
