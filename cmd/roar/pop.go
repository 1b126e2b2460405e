package main

import (
	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/rerr"
)

func newPopCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pop",
		Short: "Remove the most recent step from the active session",
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
			if len(jobs) == 0 {
				app.log.Infof("nothing to pop")
				return nil
			}
			last := jobs[len(jobs)-1]

			var artifactIDs []string
			for _, out := range last.Outputs {
				artifactIDs = append(artifactIDs, out.ArtifactID)
			}
			for _, in := range last.Inputs {
				artifactIDs = append(artifactIDs, in.ArtifactID)
			}

			if err := app.store.DeleteJob(ctx, last.ID); err != nil {
				return err
			}
			removed, err := app.store.CleanupOrphanedArtifacts(ctx, artifactIDs)
			if err != nil {
				return err
			}
			app.log.Infof("popped step @%d, removed %d orphaned artifact(s)", last.StepNumber, removed)
			return nil
		},
	}
}
