package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/roar-ml/roar/internal/rerr"
)

// Store is a SQLite-backed, single-writer-per-process content-addressed and
// job/session store (spec §3, §5). One *Store corresponds to one `.roar`
// directory.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path, enables WAL mode
// and foreign keys, and runs the schema migration. Per spec §5 only one
// roar process is expected per `.roar` directory at a time, so the
// connection pool is capped at one connection.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, rerr.New(rerr.KindDatabase, "database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "create db directory", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, rerr.Wrap(rerr.KindDatabase, "apply pragma", err)
		}
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB { return s.db }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		first_seen_at INTEGER NOT NULL,
		first_seen_path TEXT,
		source_type TEXT,
		source_url TEXT,
		metadata TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS artifact_hashes (
		artifact_id TEXT NOT NULL REFERENCES artifacts(id),
		algorithm TEXT NOT NULL,
		digest TEXT NOT NULL,
		UNIQUE(algorithm, digest)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_artifact_hashes_artifact ON artifact_hashes(artifact_id);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		hash TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		source_artifact TEXT,
		step_counter INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 0,
		git_repo TEXT,
		git_commit_start TEXT,
		git_commit_end TEXT,
		metadata TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL UNIQUE,
		started_at INTEGER NOT NULL,
		command TEXT NOT NULL,
		script TEXT,
		step_identity TEXT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		step_number INTEGER NOT NULL,
		step_name TEXT,
		git_repo TEXT,
		git_commit TEXT,
		git_branch TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		exit_code INTEGER NOT NULL DEFAULT 0,
		job_type TEXT NOT NULL DEFAULT 'run',
		metadata TEXT,
		telemetry TEXT,
		UNIQUE(session_id, job_type, step_number)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_session ON jobs(session_id);`,
	`CREATE TABLE IF NOT EXISTS job_io (
		job_id TEXT NOT NULL REFERENCES jobs(id),
		direction TEXT NOT NULL CHECK(direction IN ('input','output')),
		artifact_id TEXT NOT NULL REFERENCES artifacts(id),
		path TEXT NOT NULL,
		seq INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_job_io_job ON job_io(job_id);`,
	`CREATE INDEX IF NOT EXISTS idx_job_io_artifact ON job_io(artifact_id);`,
	`CREATE TABLE IF NOT EXISTS hash_cache (
		path TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		digest TEXT NOT NULL,
		size INTEGER NOT NULL,
		mtime INTEGER NOT NULL,
		cached_at INTEGER NOT NULL,
		PRIMARY KEY(path, algorithm)
	);`,
	`CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS collection_members (
		collection_id TEXT NOT NULL REFERENCES collections(id),
		artifact_id TEXT,
		child_collection_id TEXT,
		CHECK ((artifact_id IS NULL) <> (child_collection_id IS NULL))
	);`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS jobs_fts USING fts5(
		command, script, content='jobs', content_rowid='rowid'
	);`,
	`CREATE TRIGGER IF NOT EXISTS jobs_fts_ai AFTER INSERT ON jobs BEGIN
		INSERT INTO jobs_fts(rowid, command, script) VALUES (new.rowid, new.command, new.script);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS jobs_fts_ad AFTER DELETE ON jobs BEGIN
		INSERT INTO jobs_fts(jobs_fts, rowid, command, script) VALUES ('delete', old.rowid, old.command, old.script);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS jobs_fts_au AFTER UPDATE ON jobs BEGIN
		INSERT INTO jobs_fts(jobs_fts, rowid, command, script) VALUES ('delete', old.rowid, old.command, old.script);
		INSERT INTO jobs_fts(rowid, command, script) VALUES (new.rowid, new.command, new.script);
	END;`,
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rerr.Wrap(rerr.KindDatabase, "begin migration", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return rerr.Wrap(rerr.KindDatabase, "apply schema", err)
		}
	}
	return tx.Commit()
}

// NormalizePath absolutizes and lexically normalizes a path: "." and ".."
// components are collapsed without any symlink resolution, per spec §4.2
// and the round-trip property of spec §8.3.
func NormalizePath(p string) (string, error) {
	if !filepath.IsAbs(p) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		p = abs
	}
	return filepath.Clean(p), nil
}

// newID generates a random lowercase-hex id of n bytes (2n hex chars),
// matching the "6-12 hex chars" shape spec §3 mandates for job ids.
func newID(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func sortedHashes(hashes []ArtifactHash) []string {
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, fmt.Sprintf("%s:%s", h.Algorithm, h.Digest))
	}
	sort.Strings(out)
	return out
}

// PutArtifact inserts or returns an existing artifact for the given hashes
// (spec §4.2: "if any (algorithm, digest) already exists the existing id
// wins and new hashes are added to it").
func (s *Store) PutArtifact(ctx context.Context, hashes []ArtifactHash, size int64, firstPath, sourceType, sourceURL string) (string, error) {
	if len(hashes) == 0 {
		return "", rerr.New(rerr.KindDatabase, "artifact must have at least one hash")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", rerr.Wrap(rerr.KindDatabase, "begin put_artifact", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existingID string
	for _, h := range hashes {
		row := tx.QueryRowContext(ctx,
			`SELECT artifact_id FROM artifact_hashes WHERE algorithm = ? AND digest = ?`,
			h.Algorithm, h.Digest)
		var id string
		if err := row.Scan(&id); err == nil {
			existingID = id
			break
		} else if err != sql.ErrNoRows {
			return "", rerr.Wrap(rerr.KindDatabase, "lookup artifact hash", err)
		}
	}

	id := existingID
	if id == "" {
		generated, err := newID(16)
		if err != nil {
			return "", rerr.Wrap(rerr.KindDatabase, "generate artifact id", err)
		}
		id = generated
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (id, size, first_seen_at, first_seen_path, source_type, source_url, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, '')`,
			id, size, time.Now().Unix(), firstPath, sourceType, sourceURL); err != nil {
			return "", rerr.Wrap(rerr.KindDatabase, "insert artifact", err)
		}
	}

	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO artifact_hashes (artifact_id, algorithm, digest) VALUES (?, ?, ?)`,
			id, h.Algorithm, h.Digest); err != nil {
			return "", rerr.Wrap(rerr.KindDatabase, "insert artifact hash", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", rerr.Wrap(rerr.KindDatabase, "commit put_artifact", err)
	}
	return id, nil
}

// ErrAmbiguousHash is returned by GetByHash when a prefix matches more than
// one artifact.
var ErrAmbiguousHash = rerr.New(rerr.KindDatabase, "ambiguous hash prefix")

// GetByHash resolves a hash prefix (minimum length 8, spec §4.2) optionally
// scoped to one algorithm.
func (s *Store) GetByHash(ctx context.Context, prefix string, algorithm string) (*Artifact, error) {
	if len(prefix) < 8 {
		return nil, rerr.New(rerr.KindDatabase, "hash prefix must be at least 8 characters")
	}
	query := `SELECT DISTINCT artifact_id FROM artifact_hashes WHERE digest LIKE ?`
	args := []any{prefix + "%"}
	if algorithm != "" {
		query += ` AND algorithm = ?`
		args = append(args, algorithm)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "query artifact by hash", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, rerr.Wrap(rerr.KindDatabase, "scan artifact id", err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > 1 {
		return nil, ErrAmbiguousHash
	}
	return s.getArtifact(ctx, ids[0])
}

// GetByPath looks up the latest artifact whose first-seen-path or any
// output edge matched the given absolute path (spec §4.2).
func (s *Store) GetByPath(ctx context.Context, absPath string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT artifact_id FROM (
			SELECT id AS artifact_id, first_seen_at AS ts FROM artifacts WHERE first_seen_path = ?
			UNION ALL
			SELECT j.artifact_id, jb.started_at AS ts
			FROM job_io j JOIN jobs jb ON jb.id = j.job_id
			WHERE j.direction = 'output' AND j.path = ?
		) ORDER BY ts DESC LIMIT 1`, absPath, absPath)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, rerr.Wrap(rerr.KindDatabase, "query artifact by path", err)
	}
	return s.getArtifact(ctx, id)
}

// GetArtifact looks up an artifact by its content-addressed id, including
// its full hash list across algorithms.
func (s *Store) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	return s.getArtifact(ctx, id)
}

func (s *Store) getArtifact(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, size, first_seen_at, first_seen_path, source_type, source_url, metadata FROM artifacts WHERE id = ?`, id)
	var a Artifact
	var firstSeenAt int64
	var firstPath, sourceType, sourceURL, metadata sql.NullString
	if err := row.Scan(&a.ID, &a.Size, &firstSeenAt, &firstPath, &sourceType, &sourceURL, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, rerr.Wrap(rerr.KindDatabase, "scan artifact", err)
	}
	a.FirstSeenAt = time.Unix(firstSeenAt, 0).UTC()
	a.FirstSeenPath = firstPath.String
	a.SourceType = sourceType.String
	a.SourceURL = sourceURL.String
	a.Metadata = metadata.String

	rows, err := s.db.QueryContext(ctx, `SELECT algorithm, digest FROM artifact_hashes WHERE artifact_id = ?`, id)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "query artifact hashes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h ArtifactHash
		if err := rows.Scan(&h.Algorithm, &h.Digest); err != nil {
			return nil, rerr.Wrap(rerr.KindDatabase, "scan artifact hash", err)
		}
		a.Hashes = append(a.Hashes, h)
	}
	return &a, nil
}

// GetLocations returns every distinct path an artifact has been observed at.
func (s *Store) GetLocations(ctx context.Context, artifactID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM (
			SELECT first_seen_path AS path FROM artifacts WHERE id = ? AND first_seen_path IS NOT NULL AND first_seen_path != ''
			UNION
			SELECT path FROM job_io WHERE artifact_id = ?
		)`, artifactID, artifactID)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "query locations", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// GetJobs returns the jobs that produced (wrote) and consumed (read) an
// artifact, per spec §4.2 get_jobs.
func (s *Store) GetJobs(ctx context.Context, artifactID string) (Lineage, error) {
	var lineage Lineage
	for dir, dest := range map[string]*[]Job{"output": &lineage.ProducedBy, "input": &lineage.ConsumedBy} {
		rows, err := s.db.QueryContext(ctx, `
			SELECT DISTINCT j.id FROM job_io io JOIN jobs j ON j.id = io.job_id
			WHERE io.artifact_id = ? AND io.direction = ?`, artifactID, dir)
		if err != nil {
			return lineage, rerr.Wrap(rerr.KindDatabase, "query job ids", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return lineage, err
			}
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			job, err := s.GetJob(ctx, id)
			if err != nil {
				return lineage, err
			}
			if job != nil {
				*dest = append(*dest, *job)
			}
		}
	}
	return lineage, nil
}

// trimEmpty normalizes a possibly-empty optional string for storage.
func trimEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
