// Package dag implements step reference resolution, re-run detection and
// staleness analysis over the job/session store (spec §4.4).
package dag

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/store"
)

// ResolvedStep is the result of resolving an @N/@BN reference.
type ResolvedStep struct {
	StepNumber    int
	Command       string
	IsBuild       bool
	OriginalStep  store.Job
	StaleUpstream []int
}

// Resolver resolves DAG references and answers staleness queries against a
// Store.
type Resolver struct {
	Store *store.Store
}

func New(s *store.Store) *Resolver {
	return &Resolver{Store: s}
}

var refPattern = regexp.MustCompile(`^@(B)?([0-9]+)$`)

// Resolve parses "@N" or "@BN", looks up the step in the active session,
// and applies parameter overrides to its command (spec §4.4).
func (r *Resolver) Resolve(ctx context.Context, reference string, overrides map[string]string) (*ResolvedStep, error) {
	m := refPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(reference)))
	if m == nil {
		return nil, rerr.New(rerr.KindPreflight, fmt.Sprintf("invalid DAG reference %q, use @N or @BN", reference))
	}
	isBuild := m[1] == "B"
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, rerr.Wrap(rerr.KindPreflight, "parse step number", err)
	}

	session, err := r.Store.GetActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, rerr.New(rerr.KindPreflight, "no active DAG")
	}

	jobType := store.JobTypeRun
	prefix := "@"
	if isBuild {
		jobType = store.JobTypeBuild
		prefix = "@B"
	}

	step, err := r.Store.GetStepByNumber(ctx, session.ID, n, jobType)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, rerr.New(rerr.KindPreflight, fmt.Sprintf("no node %s%d in DAG", prefix, n))
	}

	staleSteps, err := r.StaleSteps(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	staleUpstream, err := r.staleUpstream(ctx, session.ID, *step, staleSteps)
	if err != nil {
		return nil, err
	}

	return &ResolvedStep{
		StepNumber:    n,
		Command:       ApplyOverrides(step.Command, overrides),
		IsBuild:       isBuild,
		OriginalStep:  *step,
		StaleUpstream: staleUpstream,
	}, nil
}

// ApplyOverrides implements the substitution rule of spec §4.4: replace an
// existing `--key=old` / `--key old` occurrence, or append `--key=new`.
func ApplyOverrides(command string, overrides map[string]string) string {
	if len(overrides) == 0 {
		return command
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := overrides[key]
		pattern := regexp.MustCompile(`--` + regexp.QuoteMeta(key) + `(=\S+|\s+\S+)`)
		if pattern.MatchString(command) {
			command = pattern.ReplaceAllString(command, "--"+key+"="+value)
		} else {
			command = strings.TrimRight(command, " ") + " --" + key + "=" + value
		}
	}
	return command
}
