package provenance

import "sort"

// ProcessObservation is one observed (pid, parent_pid, command) triple,
// the raw shape the tracer reports.
type ProcessObservation struct {
	PID       int
	ParentPID int
	Command   string
}

// ProcessNode is the summarized tree spec §4.9 returns: fork-only
// descendants are folded into ForkCount, and only commands that differ
// from their parent appear as children.
type ProcessNode struct {
	Command   string
	ForkCount int            `json:"fork_count,omitempty"`
	Children  []*ProcessNode `json:"children,omitempty"`
}

// SummarizeProcessTree builds the roots (processes with no parent in the
// observed set) and recurses per spec §4.9.
func SummarizeProcessTree(procs []ProcessObservation) []*ProcessNode {
	byPID := make(map[int]ProcessObservation, len(procs))
	childrenOf := make(map[int][]ProcessObservation)
	for _, p := range procs {
		byPID[p.PID] = p
	}
	for _, p := range procs {
		childrenOf[p.ParentPID] = append(childrenOf[p.ParentPID], p)
	}

	var roots []ProcessObservation
	for _, p := range procs {
		if _, ok := byPID[p.ParentPID]; !ok {
			roots = append(roots, p)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].PID < roots[j].PID })

	out := make([]*ProcessNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, buildNode(r, childrenOf))
	}
	return out
}

func buildNode(proc ProcessObservation, childrenOf map[int][]ProcessObservation) *ProcessNode {
	node := &ProcessNode{Command: proc.Command}
	forkCount, diverging := collectForkChain(proc, childrenOf)
	node.ForkCount = forkCount
	for _, child := range diverging {
		node.Children = append(node.Children, buildNode(child, childrenOf))
	}
	return node
}

// collectForkChain walks the tree rooted at proc, following children whose
// command equals proc's command (a fork-only chain), counting every node
// in that chain and collecting the first descendant(s) whose command
// diverges -- these become the summarized node's direct children,
// flattening however many forks sit between them and proc.
func collectForkChain(proc ProcessObservation, childrenOf map[int][]ProcessObservation) (int, []ProcessObservation) {
	children := childrenOf[proc.PID]
	sort.Slice(children, func(i, j int) bool { return children[i].PID < children[j].PID })

	count := 0
	var diverging []ProcessObservation
	for _, child := range children {
		if child.Command == proc.Command {
			count++
			sub, subDiverging := collectForkChain(child, childrenOf)
			count += sub
			diverging = append(diverging, subDiverging...)
			continue
		}
		diverging = append(diverging, child)
	}
	return count, diverging
}
