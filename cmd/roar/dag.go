package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/dag"
	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/render"
	"github.com/roar-ml/roar/internal/store"
)

func newDAGCommand(gf *globalFlags) *cobra.Command {
	var expanded, asJSON, noColor, showArtifacts, staleOnly bool
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Render the active session's dependency graph",
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
				return rerr.New(rerr.KindPreflight, "no active DAG")
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

			if staleOnly {
				jobs = filterStale(jobs, stale)
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(jobs)
			}

			roots := buildDAGForest(jobs)
			fmt.Print(render.DAGTree(roots, showArtifacts || expanded, stale))
			return nil
		},
	}
	cmd.Flags().BoolVar(&expanded, "expanded", false, "show every edge, including artifacts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI color in the tree output")
	cmd.Flags().BoolVar(&showArtifacts, "show-artifacts", false, "show produced artifact paths under each step")
	cmd.Flags().BoolVar(&staleOnly, "stale-only", false, "only show stale steps")
	return cmd
}

func filterStale(jobs []store.Job, stale map[int]bool) []store.Job {
	out := jobs[:0:0]
	for _, j := range jobs {
		if stale[j.StepNumber] {
			out = append(out, j)
		}
	}
	return out
}

// buildDAGForest groups jobs into trees by producer/consumer artifact
// edges: a job is a child of the job that produced one of its inputs.
func buildDAGForest(jobs []store.Job) []*render.DAGNode {
	nodes := make(map[string]*render.DAGNode, len(jobs))
	producerOf := make(map[string]string)
	for _, j := range jobs {
		nodes[j.ID] = &render.DAGNode{Job: j}
		for _, out := range j.Outputs {
			producerOf[out.ArtifactID] = j.ID
		}
	}

	isChild := make(map[string]bool)
	for _, j := range jobs {
		for _, in := range j.Inputs {
			if producerID, ok := producerOf[in.ArtifactID]; ok && producerID != j.ID {
				nodes[producerID].Children = append(nodes[producerID].Children, nodes[j.ID])
				isChild[j.ID] = true
			}
		}
	}

	var roots []*render.DAGNode
	for _, j := range jobs {
		if !isChild[j.ID] {
			roots = append(roots, nodes[j.ID])
		}
	}
	return roots
}
