package sqlite

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// maxInArgs keeps IN lists below SQLite's bound-variable limit.
const maxInArgs = 500

// SaveEmbedding stores or replaces the vector for (memory, model).
func (s *Store) SaveEmbedding(ctx context.Context, e memory.Embedding) error {
	_, err := StatementBuilder().
		Insert("memory_embeddings").
		Columns("memory_id", "model", "vector", "dims", "content_hash", "created_at").
		Values(e.MemoryID, e.Model, memory.EncodeEmbedding(e.Vector), len(e.Vector), e.ContentHash, toUnix(e.CreatedAt)).
		Suffix("ON CONFLICT(memory_id, model) DO UPDATE SET " +
			"vector = excluded.vector, dims = excluded.dims, " +
			"content_hash = excluded.content_hash, created_at = excluded.created_at").
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error().Str("method", "SaveEmbedding").Str("memory_id", e.MemoryID).Err(err).Msg("Failed to save embedding")
		return memory.NewPersistenceError("save embedding", err)
	}
	return nil
}

// ListEmbeddings returns stored vectors for model. A nil ids slice loads all.
func (s *Store) ListEmbeddings(ctx context.Context, model string, ids []string) (map[string]memory.Embedding, error) {
	out := make(map[string]memory.Embedding)
	if ids == nil {
		return out, s.loadEmbeddings(ctx, sq.Eq{"model": model}, out)
	}
	for _, chunk := range lo.Chunk(ids, maxInArgs) {
		if err := s.loadEmbeddings(ctx, sq.Eq{"model": model, "memory_id": chunk}, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadEmbeddings(ctx context.Context, where sq.Sqlizer, out map[string]memory.Embedding) error {
	rows, err := StatementBuilder().
		Select("memory_id", "model", "vector", "content_hash", "created_at").
		From("memory_embeddings").
		Where(where).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return memory.NewPersistenceError("list embeddings", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	for rows.Next() {
		var (
			e       memory.Embedding
			blob    []byte
			created int64
		)
		if err := rows.Scan(&e.MemoryID, &e.Model, &blob, &e.ContentHash, &created); err != nil {
			return memory.NewPersistenceError("scan embedding", err)
		}
		vec, err := memory.DecodeEmbedding(blob)
		if err != nil {
			s.logger.Warn().Str("memory_id", e.MemoryID).Err(err).Msg("Skipping corrupt embedding")
			continue
		}
		e.Vector = vec
		e.CreatedAt = fromUnix(created)
		out[e.MemoryID] = e
	}
	if err := rows.Err(); err != nil {
		return memory.NewPersistenceError("iterate embeddings", err)
	}
	return nil
}

// DeleteEmbeddings drops every stored vector for a memory.
func (s *Store) DeleteEmbeddings(ctx context.Context, memoryID string) error {
	if _, err := StatementBuilder().
		Delete("memory_embeddings").
		Where(sq.Eq{"memory_id": memoryID}).
		RunWith(s.db).
		ExecContext(ctx); err != nil {
		return memory.NewPersistenceError("delete embeddings", err)
	}
	return nil
}
