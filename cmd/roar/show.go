package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/dag"
	"github.com/roar-ml/roar/internal/rerr"
)

func newShowCommand(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [REF]",
		Short: "Show one step's full detail, or the most recent step if REF is omitted",
		Args:  cobra.MaximumNArgs(1),
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

			var ref string
			if len(args) == 1 {
				ref = args[0]
			} else {
				ref = fmt.Sprintf("@%d", session.StepCounter)
			}

			resolver := dag.New(app.store)
			resolved, err := resolver.Resolve(ctx, ref, nil)
			if err != nil {
				return err
			}
			job := resolved.OriginalStep

			fmt.Printf("step:       @%d\n", job.StepNumber)
			fmt.Printf("command:    %s\n", job.Command)
			fmt.Printf("exit code:  %d\n", job.ExitCode)
			fmt.Printf("duration:   %s\n", job.Duration)
			fmt.Printf("git:        %s (%s)\n", job.GitCommit, job.GitBranch)
			for _, in := range job.Inputs {
				fmt.Printf("input:      %s (%s)\n", in.Path, in.ArtifactID)
			}
			for _, out := range job.Outputs {
				fmt.Printf("output:     %s (%s)\n", out.Path, out.ArtifactID)
			}
			if len(resolved.StaleUpstream) > 0 {
				fmt.Printf("stale upstream steps: %v\n", resolved.StaleUpstream)
			}
			return nil
		},
	}
	return cmd
}
