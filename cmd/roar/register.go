package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/glaas"
	"github.com/roar-ml/roar/internal/register"
	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/secretfilter"
	"github.com/roar-ml/roar/internal/store"
)

func newRegisterCommand(gf *globalFlags) *cobra.Command {
	var dryRun, yes bool
	cmd := &cobra.Command{
		Use:   "register [flags] <path>",
		Short: "Register a session's lineage with the remote LaaS server",
		Args:  cobra.ExactArgs(1),
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
				return rerr.New(rerr.KindPreflight, "no active session to register")
			}
			jobs, err := app.store.GetSteps(ctx, session.ID)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				app.log.Infof("nothing to register")
				return nil
			}

			if dryRun {
				app.log.Infof("dry run: would register %d job(s) for session %s", len(jobs), session.Hash)
				return nil
			}
			if !yes {
				if !confirm(fmt.Sprintf("Register %d job(s) with %s?", len(jobs), app.cfg.Glaas.URL)) {
					app.log.Infof("aborted")
					return nil
				}
			}

			client, err := glaas.New(app.cfg.Glaas.URL, app.cfg.Glaas.SSHKeyPath)
			if err != nil {
				return err
			}
			filter := secretfilter.New(secretfilterConfigFrom(app.cfg))
			coordinator := register.New(client, filter)

			regJobs, artifacts, err := buildRegistrationPayload(ctx, app.store, jobs, session)
			if err != nil {
				return err
			}
			result, err := coordinator.RegisterLineage(ctx, session.Hash,
				register.GitContext{Commit: session.GitCommitStart, Branch: ""}, regJobs, artifacts)
			if err != nil {
				return err
			}
			app.log.Infof("jobs created=%d failed=%d, artifacts registered=%d failed=%d, links created=%d failed=%d",
				result.JobsCreated, result.JobsFailed, result.ArtifactsRegistered, result.ArtifactsFailed,
				result.LinksCreated, result.LinksFailed)
			for _, e := range result.Errors {
				app.log.Warnf("registration error: %s", e)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be registered without sending requests")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func buildRegistrationPayload(ctx context.Context, st *store.Store, jobs []store.Job, session *store.Session) ([]register.Job, []register.Artifact, error) {
	regJobs := make([]register.Job, 0, len(jobs))
	seen := map[string]bool{}
	var artifacts []register.Artifact

	for _, j := range jobs {
		rj := register.Job{
			UID:        j.UID,
			Command:    j.Command,
			Timestamp:  float64(j.StartedAt.Unix()),
			GitCommit:  j.GitCommit,
			GitBranch:  j.GitBranch,
			Duration:   j.Duration.Seconds(),
			ExitCode:   j.ExitCode,
			JobType:    string(j.JobType),
			StepNumber: j.StepNumber,
			Metadata:   j.Metadata,
		}
		for _, in := range j.Inputs {
			rj.Inputs = append(rj.Inputs, register.IOItem{Hash: in.ArtifactID, Path: in.Path})
		}
		for _, out := range j.Outputs {
			rj.Outputs = append(rj.Outputs, register.IOItem{Hash: out.ArtifactID, Path: out.Path})
			if seen[out.ArtifactID] {
				continue
			}
			seen[out.ArtifactID] = true
			art, err := st.GetArtifact(ctx, out.ArtifactID)
			if err != nil {
				return nil, nil, err
			}
			if art == nil {
				continue
			}
			regArt := register.Artifact{Size: art.Size}
			for _, h := range art.Hashes {
				regArt.Hashes = append(regArt.Hashes, register.HashPair{Algorithm: h.Algorithm, Digest: h.Digest})
			}
			artifacts = append(artifacts, regArt)
		}
		regJobs = append(regJobs, rj)
	}
	return regJobs, artifacts, nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}
