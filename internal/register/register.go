// Package register implements the four-phase registration coordinator of
// spec §4.12: jobs (without I/O), then artifacts, then per-job I/O links.
package register

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roar-ml/roar/internal/glaas"
	"github.com/roar-ml/roar/internal/secretfilter"
)

// maxArtifactBatchBytes is the 90KB safety margin under the server's
// 100KB body-parser limit (spec §4.12).
const maxArtifactBatchBytes = 90 * 1024

// maxIOBatchCount is the per-request item cap for input/output linking
// (spec §4.12).
const maxIOBatchCount = 100

// GitContext carries the commit/branch fallback used when a job omits
// them.
type GitContext struct {
	Commit string
	Branch string
}

// Job mirrors the registration payload for one executed command.
type Job struct {
	UID         string
	Command     string
	Timestamp   float64
	GitCommit   string
	GitBranch   string
	Duration    float64
	ExitCode    int
	JobType     string
	StepNumber  int
	Metadata    string
	Inputs      []IOItem
	Outputs     []IOItem
}

// IOItem is one input or output link candidate.
type IOItem struct {
	Hash string
	Path string
}

// Artifact mirrors the registration payload for one content-addressed
// artifact.
type Artifact struct {
	Hashes     []HashPair
	Size       int64
	SourceType string
	SourceURL  string
	Metadata   string
}

// HashPair is (algorithm, digest).
type HashPair struct {
	Algorithm string
	Digest    string
}

// Result is the structured outcome spec §4.12 calls for.
type Result struct {
	JobsCreated         int
	JobsFailed          int
	ArtifactsRegistered int
	ArtifactsFailed     int
	LinksCreated        int
	LinksFailed         int
	Errors              []string
}

func (r *Result) fail(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Coordinator drives the four phases against a glaas.Client, filtering
// secrets out of command/git/metadata fields before anything is sent.
type Coordinator struct {
	Client *glaas.Client
	Filter *secretfilter.Filter
}

func New(client *glaas.Client, filter *secretfilter.Filter) *Coordinator {
	return &Coordinator{Client: client, Filter: filter}
}

// RegisterLineage executes phases 2–4 against a session that's already
// been created (phase 1, session registration, is a prerequisite the
// caller performs once per session hash).
func (c *Coordinator) RegisterLineage(ctx context.Context, sessionHash string, gitCtx GitContext, jobs []Job, artifacts []Artifact) (*Result, error) {
	result := &Result{}

	createdUIDs := c.createJobs(ctx, sessionHash, gitCtx, jobs, result)

	if len(artifacts) > 0 {
		c.registerArtifacts(ctx, sessionHash, artifacts, result)
	}

	c.linkJobArtifacts(ctx, sessionHash, jobs, createdUIDs, result)

	return result, nil
}

func (c *Coordinator) filterText(s, field string) string {
	if c.Filter == nil {
		return s
	}
	filtered, _ := c.Filter.FilterString(s, field)
	return filtered
}

// createJobs is phase 2: validate required fields are present and
// non-placeholder, then POST one job at a time.
func (c *Coordinator) createJobs(ctx context.Context, sessionHash string, gitCtx GitContext, jobs []Job, result *Result) map[string]bool {
	created := make(map[string]bool)
	for _, j := range jobs {
		if isPlaceholder(j.UID) {
			result.JobsFailed++
			result.fail("job missing job_uid")
			continue
		}
		commit := j.GitCommit
		if isPlaceholder(commit) {
			commit = gitCtx.Commit
		}
		branch := j.GitBranch
		if isPlaceholder(branch) {
			branch = gitCtx.Branch
		}
		jobType := j.JobType
		if isPlaceholder(jobType) {
			jobType = "run"
		}

		if isPlaceholder(j.Command) || isPlaceholder(sessionHash) || isPlaceholder(commit) || isPlaceholder(branch) {
			result.JobsFailed++
			result.fail(fmt.Sprintf("job %s: missing required field", j.UID))
			continue
		}

		payload := map[string]any{
			"command":     c.filterText(j.Command, "command"),
			"timestamp":   j.Timestamp,
			"job_uid":     j.UID,
			"git_commit":  c.filterText(commit, "git_commit"),
			"git_branch":  c.filterText(branch, "git_branch"),
			"duration":    j.Duration,
			"exit_code":   j.ExitCode,
			"job_type":    jobType,
			"step_number": j.StepNumber,
		}
		if j.Metadata != "" {
			payload["metadata"] = c.filterText(j.Metadata, "metadata")
		}

		path := fmt.Sprintf("/api/v1/sessions/%s/jobs", sessionHash)
		if _, err := c.Client.Do(ctx, "POST", path, payload); err != nil {
			result.JobsFailed++
			result.fail(fmt.Sprintf("job %s: %v", j.UID, err))
			continue
		}
		result.JobsCreated++
		created[j.UID] = true
	}
	return created
}

// registerArtifacts is phase 3: validate, batch by JSON payload size, and
// POST each batch in order, stopping at the first batch error.
func (c *Coordinator) registerArtifacts(ctx context.Context, sessionHash string, artifacts []Artifact, result *Result) {
	valid := make([]Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if len(a.Hashes) == 0 || a.Size < 0 || !validSourceType(a.SourceType) {
			result.ArtifactsFailed++
			result.fail("artifact failed validation (missing hash, negative size, or bad source_type)")
			continue
		}
		valid = append(valid, a)
	}

	batches := batchArtifactsBySize(valid, maxArtifactBatchBytes)
	for _, batch := range batches {
		payload := make([]map[string]any, 0, len(batch))
		for _, a := range batch {
			payload = append(payload, artifactPayload(a, sessionHash))
		}
		path := "/api/v1/artifacts/batch"
		if _, err := c.Client.Do(ctx, "POST", path, payload); err != nil {
			result.ArtifactsFailed += len(batch)
			result.fail(fmt.Sprintf("artifact batch of %d: %v", len(batch), err))
			return
		}
		result.ArtifactsRegistered += len(batch)
	}
}

func artifactPayload(a Artifact, sessionHash string) map[string]any {
	hashes := make([]map[string]string, len(a.Hashes))
	for i, h := range a.Hashes {
		hashes[i] = map[string]string{"algorithm": h.Algorithm, "digest": h.Digest}
	}
	payload := map[string]any{
		"hashes":       hashes,
		"size":         a.Size,
		"session_hash": sessionHash,
		"source_type":  a.SourceType,
	}
	if a.SourceURL != "" {
		payload["source_url"] = a.SourceURL
	}
	if a.Metadata != "" {
		payload["metadata"] = a.Metadata
	}
	return payload
}

func validSourceType(st string) bool {
	switch st {
	case "", "s3", "gs", "https":
		return true
	default:
		return false
	}
}

// batchArtifactsBySize splits artifacts into batches whose JSON-encoded
// size stays within maxBytes; an artifact whose own encoding exceeds the
// limit is sent alone, and order is preserved across batches.
func batchArtifactsBySize(artifacts []Artifact, maxBytes int) [][]Artifact {
	if len(artifacts) == 0 {
		return nil
	}
	var batches [][]Artifact
	var current []Artifact
	currentSize := 2 // "[]" wrapper

	for _, a := range artifacts {
		encoded, _ := json.Marshal(artifactPayload(a, ""))
		size := len(encoded) + 2 // ", " separator

		if size > maxBytes {
			if len(current) > 0 {
				batches = append(batches, current)
				current = nil
				currentSize = 2
			}
			batches = append(batches, []Artifact{a})
			continue
		}

		if currentSize+size > maxBytes {
			batches = append(batches, current)
			current = []Artifact{a}
			currentSize = 2 + size
		} else {
			current = append(current, a)
			currentSize += size
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// linkJobArtifacts is phase 4: drop I/O items missing a hash or path,
// batch the remainder by count, and POST inputs/outputs independently
// per job, stopping that job's side on its first error.
func (c *Coordinator) linkJobArtifacts(ctx context.Context, sessionHash string, jobs []Job, createdUIDs map[string]bool, result *Result) {
	for _, j := range jobs {
		if !createdUIDs[j.UID] {
			continue
		}
		inputs := validIO(j.Inputs)
		outputs := validIO(j.Outputs)
		if len(inputs) == 0 && len(outputs) == 0 {
			continue
		}
		c.linkSide(ctx, sessionHash, j.UID, "inputs", inputs, result)
		c.linkSide(ctx, sessionHash, j.UID, "outputs", outputs, result)
	}
}

func validIO(items []IOItem) []IOItem {
	out := make([]IOItem, 0, len(items))
	for _, it := range items {
		if it.Hash != "" && it.Path != "" {
			out = append(out, it)
		}
	}
	return out
}

func (c *Coordinator) linkSide(ctx context.Context, sessionHash, jobUID, side string, items []IOItem, result *Result) {
	for i := 0; i < len(items); i += maxIOBatchCount {
		end := i + maxIOBatchCount
		if end > len(items) {
			end = len(items)
		}
		batch := items[i:end]
		payload := make([]map[string]string, len(batch))
		for j, it := range batch {
			payload[j] = map[string]string{"hash": it.Hash, "path": it.Path}
		}
		path := fmt.Sprintf("/api/v1/sessions/%s/jobs/%s/%s", sessionHash, jobUID, side)
		if _, err := c.Client.Do(ctx, "POST", path, payload); err != nil {
			result.LinksFailed += len(batch)
			result.fail(fmt.Sprintf("job %s %s: %v", jobUID, side, err))
			return
		}
		result.LinksCreated += len(batch)
	}
}

// isPlaceholder reports whether a required field is absent, empty, or one
// of the "unknown" sentinels — none of which may cross the wire (spec §8.8).
func isPlaceholder(s string) bool {
	return s == "" || s == "unknown" || s == "Unknown"
}
