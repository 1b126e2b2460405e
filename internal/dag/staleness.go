package dag

import (
	"context"
	"sort"

	"github.com/roar-ml/roar/internal/store"
)

// jobGraph is the session's dependency graph: producer job id -> the ids of
// jobs that consumed one of its outputs, built from shared artifact ids.
type jobGraph struct {
	jobs       map[string]store.Job
	producerOf map[string]string   // artifact id -> producing job id (latest writer)
	consumers  map[string][]string // job id -> ids of jobs that consume one of its outputs
}

func buildJobGraph(ctx context.Context, s *store.Store, sessionID string) (*jobGraph, error) {
	jobs, err := s.GetSteps(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	g := &jobGraph{
		jobs:       make(map[string]store.Job, len(jobs)),
		producerOf: make(map[string]string),
		consumers:  make(map[string][]string),
	}
	for _, j := range jobs {
		g.jobs[j.ID] = j
	}
	// Producer-of-artifact: last writer wins (jobs are time-ordered by GetSteps).
	for _, j := range jobs {
		for _, out := range j.Outputs {
			g.producerOf[out.ArtifactID] = j.ID
		}
	}
	for _, j := range jobs {
		for _, in := range j.Inputs {
			if producer, ok := g.producerOf[in.ArtifactID]; ok && producer != j.ID {
				g.consumers[producer] = append(g.consumers[producer], j.ID)
			}
		}
	}
	return g, nil
}

// directlyStale returns the set of job ids whose input was superseded: a
// later job wrote a *different* artifact at the same path after this job
// consumed the prior one (spec §4.4).
func directlyStale(g *jobGraph) map[string]bool {
	// path -> ordered writes (job id, artifact id, started_at)
	type write struct {
		jobID      string
		artifactID string
		at         int64
	}
	writes := make(map[string][]write)
	ids := make([]string, 0, len(g.jobs))
	for id := range g.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return g.jobs[ids[i]].StartedAt.Before(g.jobs[ids[j]].StartedAt) })

	for _, id := range ids {
		j := g.jobs[id]
		for _, out := range j.Outputs {
			writes[out.Path] = append(writes[out.Path], write{jobID: id, artifactID: out.ArtifactID, at: j.StartedAt.Unix()})
		}
	}

	stale := make(map[string]bool)
	for _, id := range ids {
		j := g.jobs[id]
		for _, in := range j.Inputs {
			history := writes[in.Path]
			for _, w := range history {
				if w.at > j.StartedAt.Unix() && w.artifactID != in.ArtifactID {
					stale[id] = true
				}
			}
		}
	}
	return stale
}

// propagateDownstream closes a stale set forward through the consumer
// graph: if a dependency of a job is superseded, the job is too.
func propagateDownstream(g *jobGraph, seed map[string]bool) map[string]bool {
	stale := make(map[string]bool, len(seed))
	for id := range seed {
		stale[id] = true
	}
	queue := make([]string, 0, len(seed))
	for id := range seed {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, consumer := range g.consumers[id] {
			if !stale[consumer] {
				stale[consumer] = true
				queue = append(queue, consumer)
			}
		}
	}
	return stale
}

// StaleSteps returns the set of step numbers that are stale, transitively,
// per spec §4.4 / testable property §8.6.
func (r *Resolver) StaleSteps(ctx context.Context, sessionID string) (map[int]bool, error) {
	g, err := buildJobGraph(ctx, r.Store, sessionID)
	if err != nil {
		return nil, err
	}
	direct := directlyStale(g)
	all := propagateDownstream(g, direct)

	result := make(map[int]bool, len(all))
	for id := range all {
		result[g.jobs[id].StepNumber] = true
	}
	return result, nil
}

// DownstreamSteps returns the transitive closure over outputs→inputs
// starting at the given step, regardless of staleness (spec §4.3).
func (r *Resolver) DownstreamSteps(ctx context.Context, sessionID string, stepNumber int) ([]int, error) {
	g, err := buildJobGraph(ctx, r.Store, sessionID)
	if err != nil {
		return nil, err
	}
	var startID string
	for id, j := range g.jobs {
		if j.StepNumber == stepNumber {
			startID = id
			break
		}
	}
	if startID == "" {
		return nil, nil
	}

	visited := map[string]bool{startID: true}
	queue := []string{startID}
	var downstream []int
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, consumer := range g.consumers[id] {
			if visited[consumer] {
				continue
			}
			visited[consumer] = true
			downstream = append(downstream, g.jobs[consumer].StepNumber)
			queue = append(queue, consumer)
		}
	}
	sort.Ints(downstream)
	return downstream, nil
}

func (r *Resolver) staleUpstream(ctx context.Context, sessionID string, step store.Job, staleSteps map[int]bool) ([]int, error) {
	if !staleSteps[step.StepNumber] {
		return nil, nil
	}
	g, err := buildJobGraph(ctx, r.Store, sessionID)
	if err != nil {
		return nil, err
	}
	seen := map[int]bool{}
	var upstream []int
	for _, in := range step.Inputs {
		producerID, ok := g.producerOf[in.ArtifactID]
		if !ok {
			continue
		}
		producer := g.jobs[producerID]
		if staleSteps[producer.StepNumber] && !seen[producer.StepNumber] {
			seen[producer.StepNumber] = true
			upstream = append(upstream, producer.StepNumber)
		}
	}
	sort.Ints(upstream)
	return upstream, nil
}

// RerunGroups groups jobs in a session by their I/O signature (step
// identity), returning, for each group with more than one member, the ids
// ordered oldest-to-newest — the last element is the one "on the current
// path" (spec §4.4, testable property §8.5).
func (r *Resolver) RerunGroups(ctx context.Context, sessionID string) (map[string][]store.Job, error) {
	jobs, err := r.Store.GetSteps(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]store.Job)
	for _, j := range jobs {
		groups[j.StepIdentity] = append(groups[j.StepIdentity], j)
	}
	for k, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].StartedAt.Before(g[j].StartedAt) })
		groups[k] = g
	}
	return groups, nil
}
