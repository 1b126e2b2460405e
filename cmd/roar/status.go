package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/render"
)

func newStatusCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active session's summary",
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
				fmt.Println("no active session")
				return nil
			}
			jobs, err := app.store.GetSteps(ctx, session.ID)
			if err != nil {
				return err
			}
			fmt.Print(render.SessionStatus(*session, len(jobs)))
			return nil
		},
	}
}
