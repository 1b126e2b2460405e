package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/roar-ml/roar/internal/rerr"
)

// CreateCollection creates a named set used for uploaded bundles (spec §3).
func (s *Store) CreateCollection(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO collections (id, name) VALUES (?, ?)`, id, name); err != nil {
		return "", rerr.Wrap(rerr.KindDatabase, "insert collection", err)
	}
	return id, nil
}

// AddArtifactMember adds an artifact to a collection.
func (s *Store) AddArtifactMember(ctx context.Context, collectionID, artifactID string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_members (collection_id, artifact_id) VALUES (?, ?)`, collectionID, artifactID); err != nil {
		return rerr.Wrap(rerr.KindDatabase, "insert collection member", err)
	}
	return nil
}

// AddChildCollection nests one collection inside another.
func (s *Store) AddChildCollection(ctx context.Context, parentID, childID string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_members (collection_id, child_collection_id) VALUES (?, ?)`, parentID, childID); err != nil {
		return rerr.Wrap(rerr.KindDatabase, "insert child collection", err)
	}
	return nil
}

// Members lists a collection's direct artifact and child-collection members.
func (s *Store) Members(ctx context.Context, collectionID string) ([]CollectionMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_id, child_collection_id FROM collection_members WHERE collection_id = ?`, collectionID)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindDatabase, "query collection members", err)
	}
	defer rows.Close()
	var members []CollectionMember
	for rows.Next() {
		var artifactID, childID sql.NullString
		if err := rows.Scan(&artifactID, &childID); err != nil {
			return nil, err
		}
		members = append(members, CollectionMember{
			CollectionID:      collectionID,
			ArtifactID:        artifactID.String,
			ChildCollectionID: childID.String,
		})
	}
	return members, nil
}
