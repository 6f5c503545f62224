package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newResumeBookmarkCommand() *cobra.Command {
	var workflowID string
	var bookmarkID string
	var data string

	cmd := &cobra.Command{
		Use:   "resume-bookmark",
		Short: "Deliver external input to a suspended step's bookmark",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}
			wfID, err := uuid.Parse(workflowID)
			if err != nil {
				return fmt.Errorf("invalid --workflow-id: %w", err)
			}
			bmID, err := uuid.Parse(bookmarkID)
			if err != nil {
				return fmt.Errorf("invalid --bookmark-id: %w", err)
			}
			payload, err := parseJSONInput(data)
			if err != nil {
				return err
			}

			result, err := rt.engine.ResumeBookmark(context.Background(), tc, wfID, bmID, payload, performedBy(cmd, tc.Actor.ID))
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Bookmark resumed"))
			cmd.Printf("%s %s\n", labelStyle.Render("Status:"), formatStatus(result.Status))
			cmd.Printf("%s %s\n", labelStyle.Render("Outcome:"), result.Outcome)
			if result.NextStepID != "" {
				cmd.Printf("%s %s\n", labelStyle.Render("Next Step:"), result.NextStepID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow instance UUID")
	cmd.Flags().StringVar(&bookmarkID, "bookmark-id", "", "Bookmark UUID to consume")
	cmd.Flags().StringVar(&data, "data", "{}", "Resume payload as JSON, a file path, or file://path")
	cmd.MarkFlagRequired("workflow-id")
	cmd.MarkFlagRequired("bookmark-id")

	return cmd
}
