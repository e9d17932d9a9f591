package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// CreateRelationship inserts a new edge. The (from, to, type) key is unique.
func (s *Store) CreateRelationship(ctx context.Context, r *memory.Relationship) error {
	_, err := StatementBuilder().
		Insert("relationships").
		Columns(relationshipColumns...).
		Values(r.ID, r.FromID, r.ToID, string(r.Type), r.Strength, r.Confidence, r.DecayRate,
			toUnix(r.CreatedAt), toUnix(r.LastVerified), toUnix(r.DecayedAt)).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error().
			Str("method", "CreateRelationship").
			Str("from", r.FromID).
			Str("to", r.ToID).
			Err(err).
			Msg("Failed to insert relationship")
		return memory.NewPersistenceError("insert relationship", err)
	}
	return nil
}

func (s *Store) getRelationship(ctx context.Context, where sq.Sqlizer) (*memory.Relationship, error) {
	row := StatementBuilder().
		Select(relationshipColumns...).
		From("relationships").
		Where(where).
		RunWith(s.db).
		QueryRowContext(ctx)
	r, err := scanRelationship(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, memory.NewPersistenceError("load relationship", err)
	}
	return r, nil
}

// GetRelationship loads one edge by id. Absent ids return (nil, nil).
func (s *Store) GetRelationship(ctx context.Context, id string) (*memory.Relationship, error) {
	return s.getRelationship(ctx, sq.Eq{"id": id})
}

// FindRelationship loads the edge with the given key, or (nil, nil).
func (s *Store) FindRelationship(ctx context.Context, fromID, toID string, typ memory.RelationshipType) (*memory.Relationship, error) {
	return s.getRelationship(ctx, sq.Eq{"from_id": fromID, "to_id": toID, "type": string(typ)})
}

// UpdateRelationship rewrites the mutable columns of an edge.
func (s *Store) UpdateRelationship(ctx context.Context, r *memory.Relationship) error {
	res, err := StatementBuilder().
		Update("relationships").
		SetMap(map[string]interface{}{
			"strength":      r.Strength,
			"confidence":    r.Confidence,
			"decay_rate":    r.DecayRate,
			"last_verified": toUnix(r.LastVerified),
			"decayed_at":    toUnix(r.DecayedAt),
		}).
		Where(sq.Eq{"id": r.ID}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error().Str("method", "UpdateRelationship").Str("id", r.ID).Err(err).Msg("Failed to update relationship")
		return memory.NewPersistenceError("update relationship", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memory.NewNotFoundError(fmt.Sprintf("relationship %s not found", r.ID))
	}
	return nil
}

// DeleteRelationship removes one edge, reporting whether it existed.
func (s *Store) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	res, err := StatementBuilder().Delete("relationships").Where(sq.Eq{"id": id}).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return false, memory.NewPersistenceError("delete relationship", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) listRelationships(ctx context.Context, where sq.Sqlizer) ([]*memory.Relationship, error) {
	rows, err := StatementBuilder().
		Select(relationshipColumns...).
		From("relationships").
		Where(where).
		OrderBy("created_at", "id").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		s.logger.Error().Str("method", "listRelationships").Err(err).Msg("Query failed")
		return nil, memory.NewPersistenceError("list relationships", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var out []*memory.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, memory.NewPersistenceError("scan relationship", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewPersistenceError("iterate relationships", err)
	}
	return out, nil
}

// ListRelationships returns every edge, oldest first.
func (s *Store) ListRelationships(ctx context.Context) ([]*memory.Relationship, error) {
	return s.listRelationships(ctx, sq.Expr("1=1"))
}

// ListRelationshipsFor returns edges touching id in either direction.
func (s *Store) ListRelationshipsFor(ctx context.Context, id string) ([]*memory.Relationship, error) {
	return s.listRelationships(ctx, sq.Or{sq.Eq{"from_id": id}, sq.Eq{"to_id": id}})
}

// DeleteRelationshipsForMemory removes every edge incident to id.
func (s *Store) DeleteRelationshipsForMemory(ctx context.Context, id string) (int, error) {
	res, err := StatementBuilder().
		Delete("relationships").
		Where(sq.Or{sq.Eq{"from_id": id}, sq.Eq{"to_id": id}}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return 0, memory.NewPersistenceError("delete incident relationships", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
