package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/dag"
	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/render"
)

func newLogCommand(gf *globalFlags) *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List the active session's steps as a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setupApp(cmd, gf)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := app.ctx

			session, err := app.store.GetActiveSession(ctx)
			if err != nil {
				return err
			}
			if session == nil {
				return rerr.New(rerr.KindPreflight, "no active session")
			}
			jobs, err := app.store.GetSteps(ctx, session.ID)
			if err != nil {
				return err
			}
			resolver := dag.New(app.store)
			stale, err := resolver.StaleSteps(ctx, session.ID)
			if err != nil {
				return err
			}
			fmt.Print(render.StepsTable(jobs, stale, noColor))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI color")
	return cmd
}
