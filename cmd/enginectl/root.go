package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enginectl",
		Short: "Operator CLI for the onboarding workflow engine",
		Long:  "A command-line tool for driving and inspecting tenant onboarding workflows directly against the engine's stores.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			built, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			rt = built
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt != nil {
				rt.dbCleanup()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("config", "", "Config file path")
	cmd.PersistentFlags().String("role", "tenant_operator", fmt.Sprintf("Acting role (%s, %s, %s, %s, %s)",
		"market_ops", "tenant_admin", "tenant_operator", "tenant_viewer", "compliance_reviewer"))
	cmd.PersistentFlags().String("actor-id", "", "Acting actor UUID (random if omitted)")
	cmd.PersistentFlags().String("tenant-id", "", "Tenant UUID the operation is scoped to (required unless --role market_ops)")
	cmd.PersistentFlags().String("performed-by", "", "Attribution recorded on emitted events (defaults to actor-id@hostname)")

	cmd.AddCommand(newCreateCommand())
	cmd.AddCommand(newExecuteStepCommand())
	cmd.AddCommand(newResumeBookmarkCommand())
	cmd.AddCommand(newPauseCommand())
	cmd.AddCommand(newResumeCommand())
	cmd.AddCommand(newRollbackCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newSubmitCommand())
	cmd.AddCommand(newApproveCommand())
	cmd.AddCommand(newRejectCommand())
	cmd.AddCommand(newCancelCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newListCommand())

	return cmd
}
