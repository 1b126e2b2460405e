// Package store implements the content-addressed store and the job/session
// store of spec §3–§4.3 on top of an embedded SQLite database opened in
// WAL mode with foreign keys enabled (spec §5).
package store

import "time"

// ArtifactHash is (algorithm, digest); spec §3.
type ArtifactHash struct {
	Algorithm string
	Digest    string
}

// Artifact is a content-addressed file (spec §3).
type Artifact struct {
	ID            string
	Size          int64
	FirstSeenAt   time.Time
	FirstSeenPath string
	SourceType    string // "s3", "gs", "https", or "" if absent
	SourceURL     string
	Metadata      string // raw JSON, may be empty
	Hashes        []ArtifactHash
}

// IOEdge links a job to an artifact it read or wrote, at an observed path.
type IOEdge struct {
	ArtifactID string
	Path       string
}

// JobType distinguishes "run" (the spec's absent/default value) from
// "build" jobs.
type JobType string

const (
	JobTypeRun   JobType = "run"
	JobTypeBuild JobType = "build"
)

// Job is an executed command (spec §3).
type Job struct {
	ID            string
	UID           string
	StartedAt     time.Time
	Command       string
	Script        string
	StepIdentity  string
	SessionID     string
	StepNumber    int
	StepName      string
	GitRepo       string
	GitCommit     string
	GitBranch     string
	Duration      time.Duration
	ExitCode      int
	JobType       JobType
	Metadata      string
	Telemetry     string
	Inputs        []IOEdge
	Outputs       []IOEdge
}

// Session is an ordered sequence of jobs (spec §3).
type Session struct {
	ID              string
	Hash            string
	CreatedAt       time.Time
	SourceArtifact  string
	StepCounter     int
	Active          bool
	GitRepo         string
	GitCommitStart  string
	GitCommitEnd    string
	Metadata        string // YAML
}

// Collection is a named set of artifacts or child collections.
type Collection struct {
	ID   string
	Name string
}

// CollectionMember is either an artifact or a child collection, never both.
type CollectionMember struct {
	CollectionID      string
	ArtifactID        string
	ChildCollectionID string
}

// RecordJobInput groups the fields record_job needs (spec §4.3).
type RecordJobInput struct {
	// JobUID, if set, is used as the job's uid instead of generating a
	// fresh one -- needed when a uid must be known before the job is
	// recorded, e.g. to name its reversible-backup directory.
	JobUID         string
	Command        string
	StartedAt      time.Time
	GitRepo        string
	GitCommit      string
	GitBranch      string
	Duration       time.Duration
	ExitCode       int
	Inputs         []PathHashes
	Outputs        []PathHashes
	Metadata       string
	Telemetry      string
	JobType        JobType
	StepName       string
}

// PathHashes is an observed path plus the hashes computed for it, used when
// recording a job's inputs/outputs (artifacts are created on first sight).
type PathHashes struct {
	Path   string
	Hashes []ArtifactHash
	Size   int64
}

// Lineage is the {produced_by, consumed_by} view of get_jobs (spec §4.2).
type Lineage struct {
	ProducedBy []Job
	ConsumedBy []Job
}
