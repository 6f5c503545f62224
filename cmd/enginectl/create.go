package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newCreateCommand() *cobra.Command {
	var marketRole string
	var templateVersion int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new onboarding workflow instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}

			workflowID, err := rt.engine.Create(context.Background(), tc, marketRole, templateVersion, performedBy(cmd, tc.Actor.ID))
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Workflow created"))
			cmd.Printf("%s %s\n", labelStyle.Render("ID:"), workflowID)
			return nil
		},
	}

	cmd.Flags().StringVar(&marketRole, "market-role", "", "Market role the new workflow onboards (e.g. generator, retailer)")
	cmd.Flags().IntVar(&templateVersion, "template-version", 0, "Template version to pin (0 selects the active template for the market role)")
	cmd.MarkFlagRequired("market-role")

	return cmd
}
