package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/roar-ml/roar/internal/rerr"
)

// SessionHash computes the stable server-side identity of a local session
// per the GLOSSARY: sha256(absolute_roar_dir + ":" + session_id).
func SessionHash(absoluteRoarDir, sessionID string) string {
	sum := sha256.Sum256([]byte(absoluteRoarDir + ":" + sessionID))
	return hex.EncodeToString(sum[:])
}

// GetActiveSession returns the session currently marked active, if any
// (spec §4.3).
func (s *Store) GetActiveSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM sessions WHERE active = 1 LIMIT 1`)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, rerr.Wrap(rerr.KindDatabase, "query active session", err)
	}
	return s.getSession(ctx, id)
}

// CreateSession creates a new session, deactivating any previously active
// one in the same transaction (spec §4.3, invariant "at most one session
// active at a time").
func (s *Store) CreateSession(ctx context.Context, roarDir, gitRepo, gitCommit string, active bool) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "begin create_session", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if active {
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET active = 0 WHERE active = 1`); err != nil {
			return nil, rerr.Wrap(rerr.KindDatabase, "deactivate previous session", err)
		}
	}

	id := uuid.NewString()
	hash := SessionHash(roarDir, id)
	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, hash, created_at, step_counter, active, git_repo, git_commit_start)
		VALUES (?, ?, ?, 0, ?, ?, ?)`,
		id, hash, now.Unix(), boolToInt(active), gitRepo, gitCommit); err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "insert session", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "commit create_session", err)
	}
	return &Session{ID: id, Hash: hash, CreatedAt: now, Active: active, GitRepo: gitRepo, GitCommitStart: gitCommit}, nil
}

// SetSessionMetadata YAML-encodes the given facts and stores them on the
// session row (spec §3's sessions.metadata column).
func (s *Store) SetSessionMetadata(ctx context.Context, sessionID string, facts map[string]any) error {
	encoded, err := yaml.Marshal(facts)
	if err != nil {
		return rerr.Wrap(rerr.KindDatabase, "encode session metadata as yaml", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET metadata = ? WHERE id = ?`, string(encoded), sessionID); err != nil {
		return rerr.Wrap(rerr.KindDatabase, "update session metadata", err)
	}
	return nil
}

// SessionMetadata decodes a session's YAML metadata blob, if any.
func SessionMetadata(sess Session) (map[string]any, error) {
	if sess.Metadata == "" {
		return nil, nil
	}
	var facts map[string]any
	if err := yaml.Unmarshal([]byte(sess.Metadata), &facts); err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "decode session metadata yaml", err)
	}
	return facts, nil
}

// DeactivateSession clears the active flag without creating a replacement,
// used by `roar reset`.
func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return rerr.Wrap(rerr.KindDatabase, "deactivate session", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) getSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, hash, created_at, source_artifact, step_counter, active, git_repo, git_commit_start, git_commit_end, metadata
		FROM sessions WHERE id = ?`, id)
	var sess Session
	var createdAt int64
	var active int
	var src, gitRepo, gitStart, gitEnd, meta sql.NullString
	if err := row.Scan(&sess.ID, &sess.Hash, &createdAt, &src, &sess.StepCounter, &active, &gitRepo, &gitStart, &gitEnd, &meta); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, rerr.Wrap(rerr.KindDatabase, "scan session", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.Active = active == 1
	sess.SourceArtifact = src.String
	sess.GitRepo = gitRepo.String
	sess.GitCommitStart = gitStart.String
	sess.GitCommitEnd = gitEnd.String
	sess.Metadata = meta.String
	return &sess, nil
}

// GetSession fetches a session by id, for callers outside this package.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.getSession(ctx, id)
}

// RecordJob persists a completed job execution, assigns its step number and
// links its I/O, creating artifacts on first sight (spec §4.3).
func (s *Store) RecordJob(ctx context.Context, sessionID string, in RecordJobInput) (jobID, jobUID string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", rerr.Wrap(rerr.KindDatabase, "begin record_job", err)
	}
	defer tx.Rollback() //nolint:errcheck

	jt := in.JobType
	if jt == "" {
		jt = JobTypeRun
	}

	var maxStep sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT MAX(step_number) FROM jobs WHERE session_id = ? AND job_type = ?`, sessionID, string(jt))
	if err := row.Scan(&maxStep); err != nil {
		return "", "", rerr.Wrap(rerr.KindDatabase, "compute next step number", err)
	}
	stepNumber := 1
	if maxStep.Valid {
		stepNumber = int(maxStep.Int64) + 1
	}

	id := uuid.NewString()
	uid := in.JobUID
	if uid == "" {
		uid = uuid.NewString()
	}
	stepIdentity, err := computeStepIdentity(tx, ctx, id, in)
	if err != nil {
		return "", "", err
	}

	script := extractScript(in.Command)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (id, uid, started_at, command, script, step_identity, session_id, step_number, step_name,
			git_repo, git_commit, git_branch, duration_ms, exit_code, job_type, metadata, telemetry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, uid, in.StartedAt.Unix(), in.Command, script, stepIdentity, sessionID, stepNumber, in.StepName,
		in.GitRepo, in.GitCommit, in.GitBranch, in.Duration.Milliseconds(), in.ExitCode, string(jt), in.Metadata, in.Telemetry,
	); err != nil {
		return "", "", rerr.Wrap(rerr.KindDatabase, "insert job", err)
	}

	if err := linkIO(ctx, tx, id, "input", in.Inputs); err != nil {
		return "", "", err
	}
	if err := linkIO(ctx, tx, id, "output", in.Outputs); err != nil {
		return "", "", err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET step_counter = ? WHERE id = ? AND step_counter < ?`,
		stepNumber, sessionID, stepNumber); err != nil {
		return "", "", rerr.Wrap(rerr.KindDatabase, "bump session step counter", err)
	}

	if err := tx.Commit(); err != nil {
		return "", "", rerr.Wrap(rerr.KindDatabase, "commit record_job", err)
	}
	return id, uid, nil
}

// extractScript returns the first token of command interpretable as a
// script path (spec §3): the first whitespace-delimited token that looks
// like a path (contains a '/' or ends in a common script extension).
func extractScript(command string) string {
	fields := splitFields(command)
	for _, f := range fields {
		if looksLikeScript(f) {
			return f
		}
	}
	return ""
}

func splitFields(s string) []string {
	var fields []string
	var cur []rune
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if len(cur) > 0 {
				fields = append(fields, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		fields = append(fields, string(cur))
	}
	return fields
}

func looksLikeScript(token string) bool {
	exts := []string{".py", ".sh", ".rb", ".js", ".ts", ".go", ".R", ".pl"}
	for _, ext := range exts {
		if len(token) > len(ext) && token[len(token)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// computeStepIdentity implements the re-run signature of spec §4.4: the
// sorted input/output hash tuple, falling back to the job's own uid (which
// the caller hasn't generated yet, so the job's fresh id stands in) when
// the job has no I/O.
func computeStepIdentity(tx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, ctx context.Context, fallbackID string, in RecordJobInput) (string, error) {
	if len(in.Inputs) == 0 && len(in.Outputs) == 0 {
		return fallbackID, nil
	}
	h := sha256.New()
	h.Write([]byte(in.Command))
	h.Write([]byte{0})
	for _, side := range [][]PathHashes{sortedPathHashes(in.Inputs), sortedPathHashes(in.Outputs)} {
		for _, ph := range side {
			for _, hh := range sortedArtifactHashes(ph.Hashes) {
				h.Write([]byte(hh))
				h.Write([]byte{0})
			}
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sortedPathHashes(in []PathHashes) []PathHashes {
	out := make([]PathHashes, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func sortedArtifactHashes(hashes []ArtifactHash) []string {
	return sortedHashes(hashes)
}

func linkIO(ctx context.Context, tx *sql.Tx, jobID, direction string, items []PathHashes) error {
	for i, item := range items {
		path, err := NormalizePath(item.Path)
		if err != nil {
			return rerr.Wrap(rerr.KindDatabase, fmt.Sprintf("normalize %s path", direction), err)
		}
		var artifactID string
		row := tx.QueryRowContext(ctx, `
			SELECT artifact_id FROM artifact_hashes WHERE algorithm = ? AND digest = ?`,
			firstAlgo(item.Hashes), firstDigest(item.Hashes))
		if err := row.Scan(&artifactID); err != nil {
			if err != sql.ErrNoRows {
				return rerr.Wrap(rerr.KindDatabase, "lookup io artifact", err)
			}
			id, err := newID(16)
			if err != nil {
				return err
			}
			artifactID = id
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO artifacts (id, size, first_seen_at, first_seen_path, metadata) VALUES (?, ?, ?, ?, '')`,
				artifactID, item.Size, time.Now().Unix(), path); err != nil {
				return rerr.Wrap(rerr.KindDatabase, "insert io artifact", err)
			}
			for _, h := range item.Hashes {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO artifact_hashes (artifact_id, algorithm, digest) VALUES (?, ?, ?)`,
					artifactID, h.Algorithm, h.Digest); err != nil {
					return rerr.Wrap(rerr.KindDatabase, "insert io artifact hash", err)
				}
			}
		} else {
			for _, h := range item.Hashes {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO artifact_hashes (artifact_id, algorithm, digest) VALUES (?, ?, ?)`,
					artifactID, h.Algorithm, h.Digest); err != nil {
					return rerr.Wrap(rerr.KindDatabase, "insert io artifact hash", err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO job_io (job_id, direction, artifact_id, path, seq) VALUES (?, ?, ?, ?, ?)`,
			jobID, direction, artifactID, path, i); err != nil {
			return rerr.Wrap(rerr.KindDatabase, "insert job_io edge", err)
		}
	}
	return nil
}

func firstAlgo(hashes []ArtifactHash) string {
	if len(hashes) == 0 {
		return ""
	}
	return hashes[0].Algorithm
}

func firstDigest(hashes []ArtifactHash) string {
	if len(hashes) == 0 {
		return ""
	}
	return hashes[0].Digest
}

// GetStepByNumber resolves a step within a session for the given job type
// (nil jobType defaults to "run"); used by @N/@BN reference resolution.
func (s *Store) GetStepByNumber(ctx context.Context, sessionID string, n int, jobType JobType) (*Job, error) {
	if jobType == "" {
		jobType = JobTypeRun
	}
	row := s.db.QueryRowContext(ctx, `SELECT id FROM jobs WHERE session_id = ? AND job_type = ? AND step_number = ?`,
		sessionID, string(jobType), n)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, rerr.Wrap(rerr.KindDatabase, "query step by number", err)
	}
	return s.GetJob(ctx, id)
}

// GetSteps returns every job in a session, ordered by (step_number,
// started_at) per the ordering invariant of spec §3.
func (s *Store) GetSteps(ctx context.Context, sessionID string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE session_id = ? ORDER BY step_number, started_at`, sessionID)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "query steps", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

// GetJob loads one job with its I/O edges.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, uid, started_at, command, script, step_identity, session_id, step_number, step_name,
			git_repo, git_commit, git_branch, duration_ms, exit_code, job_type, metadata, telemetry
		FROM jobs WHERE id = ?`, id)
	var j Job
	var startedAt, durationMs int64
	var script, stepIdentity, stepName, gitRepo, gitCommit, gitBranch, metadata, telemetry sql.NullString
	var jobType string
	if err := row.Scan(&j.ID, &j.UID, &startedAt, &j.Command, &script, &stepIdentity, &j.SessionID, &j.StepNumber, &stepName,
		&gitRepo, &gitCommit, &gitBranch, &durationMs, &j.ExitCode, &jobType, &metadata, &telemetry); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, rerr.Wrap(rerr.KindDatabase, "scan job", err)
	}
	j.StartedAt = time.Unix(startedAt, 0).UTC()
	j.Script = script.String
	j.StepIdentity = stepIdentity.String
	j.StepName = stepName.String
	j.GitRepo = gitRepo.String
	j.GitCommit = gitCommit.String
	j.GitBranch = gitBranch.String
	j.Duration = time.Duration(durationMs) * time.Millisecond
	j.JobType = JobType(jobType)
	j.Metadata = metadata.String
	j.Telemetry = telemetry.String

	inputs, err := s.getIO(ctx, id, "input")
	if err != nil {
		return nil, err
	}
	outputs, err := s.getIO(ctx, id, "output")
	if err != nil {
		return nil, err
	}
	j.Inputs = inputs
	j.Outputs = outputs
	return &j, nil
}

func (s *Store) getIO(ctx context.Context, jobID, direction string) ([]IOEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_id, path FROM job_io WHERE job_id = ? AND direction = ? ORDER BY seq`, jobID, direction)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "query job io", err)
	}
	defer rows.Close()
	var edges []IOEdge
	for rows.Next() {
		var e IOEdge
		if err := rows.Scan(&e.ArtifactID, &e.Path); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// GetInputs/GetOutputs are thin convenience wrappers for spec §8.4's
// round-trip property.
func (s *Store) GetInputs(ctx context.Context, jobID string) ([]IOEdge, error) {
	return s.getIO(ctx, jobID, "input")
}

func (s *Store) GetOutputs(ctx context.Context, jobID string) ([]IOEdge, error) {
	return s.getIO(ctx, jobID, "output")
}

// DeleteJob removes a job and its I/O edges (used by `roar pop`).
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rerr.Wrap(rerr.KindDatabase, "begin delete_job", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_io WHERE job_id = ?`, jobID); err != nil {
		return rerr.Wrap(rerr.KindDatabase, "delete job_io", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID); err != nil {
		return rerr.Wrap(rerr.KindDatabase, "delete job", err)
	}
	return tx.Commit()
}

// CleanupOrphanedArtifacts deletes any of the given artifact ids that are
// no longer referenced by any job (spec §4.3).
func (s *Store) CleanupOrphanedArtifacts(ctx context.Context, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_io WHERE artifact_id = ?`, id)
		var count int
		if err := row.Scan(&count); err != nil {
			return removed, rerr.Wrap(rerr.KindDatabase, "count artifact references", err)
		}
		if count > 0 {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return removed, rerr.Wrap(rerr.KindDatabase, "begin cleanup", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifact_hashes WHERE artifact_id = ?`, id); err != nil {
			tx.Rollback() //nolint:errcheck
			return removed, rerr.Wrap(rerr.KindDatabase, "delete artifact hashes", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id); err != nil {
			tx.Rollback() //nolint:errcheck
			return removed, rerr.Wrap(rerr.KindDatabase, "delete artifact", err)
		}
		if err := tx.Commit(); err != nil {
			return removed, rerr.Wrap(rerr.KindDatabase, "commit cleanup", err)
		}
		removed++
	}
	return removed, nil
}

// SearchJobs runs a full-text search over (command, script), per spec §4.3.
func (s *Store) SearchJobs(ctx context.Context, query string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id FROM jobs_fts f JOIN jobs j ON j.rowid = f.rowid WHERE jobs_fts MATCH ? ORDER BY rank`, query)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "fts query", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}
