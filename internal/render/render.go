// Package render formats store data for terminal output: the steps
// table (`roar log`/`roar show`), the DAG tree (`roar dag`), and session
// status, in the style of the teacher's table-based CLI reporters.
package render

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/roar-ml/roar/internal/store"
)

// StepsTable renders a session's jobs as a table, one row per step,
// marking stale steps.
func StepsTable(jobs []store.Job, stale map[int]bool, noColor bool) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Type", "Name", "Command", "Exit", "Stale"})
	for _, j := range jobs {
		name := j.StepName
		if name == "" {
			name = "-"
		}
		staleMark := ""
		if stale[j.StepNumber] {
			staleMark = markStale(noColor)
		}
		t.AppendRow(table.Row{j.StepNumber, j.JobType, name, truncate(j.Command, 60), j.ExitCode, staleMark})
	}
	return t.Render()
}

func markStale(noColor bool) string {
	if noColor {
		return "STALE"
	}
	return "\x1b[33mSTALE\x1b[0m"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// DAGNode is one node of the rendered dependency tree: a job plus the
// steps it depends on.
type DAGNode struct {
	Job      store.Job
	Children []*DAGNode
}

// DAGTree renders a DAGNode forest as indented text, with artifact edges
// optionally shown.
func DAGTree(roots []*DAGNode, showArtifacts bool, stale map[int]bool) string {
	var b strings.Builder
	for _, r := range roots {
		writeNode(&b, r, "", true, showArtifacts, stale)
	}
	return b.String()
}

func writeNode(b *strings.Builder, n *DAGNode, prefix string, last bool, showArtifacts bool, stale map[int]bool) {
	connector := "├── "
	nextPrefix := prefix + "│   "
	if last {
		connector = "└── "
		nextPrefix = prefix + "    "
	}
	marker := ""
	if stale[n.Job.StepNumber] {
		marker = " (stale)"
	}
	fmt.Fprintf(b, "%s%s@%d %s%s\n", prefix, connector, n.Job.StepNumber, n.Job.Command, marker)
	if showArtifacts {
		for _, out := range n.Job.Outputs {
			fmt.Fprintf(b, "%s│   → %s\n", nextPrefix, out.Path)
		}
	}
	for i, child := range n.Children {
		writeNode(b, child, nextPrefix, i == len(n.Children)-1, showArtifacts, stale)
	}
}

// SessionStatus renders one session's summary as a table, grounded on
// the teacher's renderSummary pattern.
func SessionStatus(s store.Session, jobCount int) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Session", "Active", "Jobs", "Git Repo", "Commit Range"})
	t.AppendRow(table.Row{
		s.Hash,
		s.Active,
		jobCount,
		s.GitRepo,
		fmt.Sprintf("%s..%s", shortOrDash(s.GitCommitStart), shortOrDash(s.GitCommitEnd)),
	})
	return t.Render()
}

func shortOrDash(hash string) string {
	if hash == "" {
		return "-"
	}
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// LineageTree renders a produced_by/consumed_by lineage view.
func LineageTree(artifactID string, lineage store.Lineage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "artifact %s\n", artifactID)
	if len(lineage.ProducedBy) > 0 {
		fmt.Fprintf(&b, "produced by:\n")
		for _, j := range lineage.ProducedBy {
			fmt.Fprintf(&b, "  @%d %s\n", j.StepNumber, j.Command)
		}
	}
	if len(lineage.ConsumedBy) > 0 {
		fmt.Fprintf(&b, "consumed by:\n")
		for _, j := range lineage.ConsumedBy {
			fmt.Fprintf(&b, "  @%d %s\n", j.StepNumber, j.Command)
		}
	}
	return b.String()
}
