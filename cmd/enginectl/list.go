package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marketgrid/onboardengine/internal/indexstore"
	"github.com/marketgrid/onboardengine/internal/workflow"
)

func newListCommand() *cobra.Command {
	var status string
	var marketRole string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow instances from the Index Store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := actorContext(cmd)
			if err != nil {
				return err
			}

			filter := indexstore.Filter{MarketRole: marketRole}
			if status != "" {
				filter.Status = workflow.Status(status)
			}

			rows, err := rt.index.Query(context.Background(), tc, filter, indexstore.Page{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}

			if len(rows) == 0 {
				cmd.Println("No workflows found")
				return nil
			}

			cmd.Println(renderIndexRowList(rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by workflow status")
	cmd.Flags().StringVar(&marketRole, "market-role", "", "Filter by market role")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Row offset for pagination")

	return cmd
}
