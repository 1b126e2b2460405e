package main

import (
	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/rerr"
)

func newResetCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Deactivate the current session without deleting it",
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
			if err := app.store.DeactivateSession(ctx, session.ID); err != nil {
				return err
			}
			app.log.Infof("deactivated session %s", session.Hash)
			return nil
		},
	}
}
