package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// CreateMemory inserts a new memory and its tag index rows.
func (s *Store) CreateMemory(ctx context.Context, e *memory.Entity) error {
	s.logger.Debug().
		Str("method", "CreateMemory").
		Str("id", e.ID).
		Str("owner_id", e.OwnerID).
		Str("content", truncateString(e.Content, 40)).
		Msg("called")

	tagsJSON, err := encodeJSON(e.Tags, len(e.Tags) == 0)
	if err != nil {
		return memory.NewValidationError("tags are not serializable", err)
	}
	metaJSON, err := encodeJSON(e.Metadata, e.Metadata == nil)
	if err != nil {
		return memory.NewValidationError("metadata is not serializable", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error().Str("method", "CreateMemory").Err(err).Msg("Failed to begin transaction")
		return memory.NewPersistenceError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := StatementBuilder().
		Insert("memories").
		Columns(memoryColumns...).
		Values(e.ID, e.OwnerID, e.Content, string(e.Type), e.Importance, tagsJSON, string(e.Tier),
			metaJSON, toUnix(e.CreatedAt), toUnix(e.UpdatedAt), toUnix(e.LastAccessed), e.AccessCount)
	if _, err := query.RunWith(tx).ExecContext(ctx); err != nil {
		s.logger.Error().Str("method", "CreateMemory").Str("id", e.ID).Err(err).Msg("Failed to insert memory")
		return memory.NewPersistenceError("insert memory", err)
	}
	if err := s.writeTags(ctx, tx, e.ID, e.Tags); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error().Str("method", "CreateMemory").Err(err).Msg("Transaction commit failed")
		return memory.NewPersistenceError("commit memory", err)
	}
	s.logger.Info().Str("method", "CreateMemory").Str("id", e.ID).Msg("Memory stored")
	return nil
}

func (s *Store) writeTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	if _, err := StatementBuilder().Delete("memory_tags").Where(sq.Eq{"memory_id": id}).
		RunWith(tx).ExecContext(ctx); err != nil {
		return memory.NewPersistenceError("clear tags", err)
	}
	normalized := normalizeTags(tags)
	if len(normalized) == 0 {
		return nil
	}
	insert := StatementBuilder().Insert("memory_tags").Columns("memory_id", "tag")
	for _, t := range normalized {
		insert = insert.Values(id, t)
	}
	if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
		s.logger.Error().Str("method", "writeTags").Str("id", id).Err(err).Msg("Failed to insert tags")
		return memory.NewPersistenceError("insert tags", err)
	}
	return nil
}

// GetMemory loads one memory. Absent ids return (nil, nil).
func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Entity, error) {
	return s.getMemory(ctx, s.db, id)
}

func (s *Store) getMemory(ctx context.Context, runner sq.BaseRunner, id string) (*memory.Entity, error) {
	row := StatementBuilder().
		Select(memoryColumns...).
		From("memories").
		Where(sq.Eq{"id": id}).
		RunWith(runner).
		QueryRowContext(ctx)
	e, err := scanMemory(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error().Str("method", "GetMemory").Str("id", id).Err(err).Msg("Failed to load memory")
		return nil, memory.NewPersistenceError("load memory", err)
	}
	return e, nil
}

// UpdateMemory rewrites the mutable columns of an existing memory.
func (s *Store) UpdateMemory(ctx context.Context, e *memory.Entity) error {
	tagsJSON, err := encodeJSON(e.Tags, len(e.Tags) == 0)
	if err != nil {
		return memory.NewValidationError("tags are not serializable", err)
	}
	metaJSON, err := encodeJSON(e.Metadata, e.Metadata == nil)
	if err != nil {
		return memory.NewValidationError("metadata is not serializable", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.NewPersistenceError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := StatementBuilder().
		Update("memories").
		SetMap(map[string]interface{}{
			"content":    e.Content,
			"type":       string(e.Type),
			"importance": e.Importance,
			"tags_json":  tagsJSON,
			"tier":       string(e.Tier),
			"metadata":   metaJSON,
			"updated_at": toUnix(e.UpdatedAt),
		}).
		Where(sq.Eq{"id": e.ID}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error().Str("method", "UpdateMemory").Str("id", e.ID).Err(err).Msg("Failed to update memory")
		return memory.NewPersistenceError("update memory", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memory.NewNotFoundError(fmt.Sprintf("memory %s not found", e.ID))
	}
	if err := s.writeTags(ctx, tx, e.ID, e.Tags); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return memory.NewPersistenceError("commit memory update", err)
	}
	return nil
}

// DeleteMemory removes a memory with its tags and stored embeddings.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, memory.NewPersistenceError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := StatementBuilder().Delete("memories").Where(sq.Eq{"id": id}).RunWith(tx).ExecContext(ctx)
	if err != nil {
		s.logger.Error().Str("method", "DeleteMemory").Str("id", id).Err(err).Msg("Failed to delete memory")
		return false, memory.NewPersistenceError("delete memory", err)
	}
	n, _ := res.RowsAffected()
	for _, table := range []string{"memory_tags", "memory_embeddings"} {
		if _, err := StatementBuilder().Delete(table).Where(sq.Eq{"memory_id": id}).
			RunWith(tx).ExecContext(ctx); err != nil {
			return false, memory.NewPersistenceError("delete "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, memory.NewPersistenceError("commit memory delete", err)
	}
	return n > 0, nil
}

// ListMemories returns memories matching f, newest first.
func (s *Store) ListMemories(ctx context.Context, f memory.ListFilter) ([]*memory.Entity, error) {
	query := StatementBuilder().
		Select(memoryColumns...).
		From("memories").
		Where(buildFilterWhere(f)).
		OrderBy("created_at DESC", "id")
	if f.Limit > 0 {
		query = query.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			query = query.Limit(1<<62 - 1)
		}
		query = query.Offset(uint64(f.Offset))
	}

	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		s.logger.Error().Str("method", "ListMemories").Err(err).Msg("Query failed")
		return nil, memory.NewPersistenceError("list memories", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var out []*memory.Entity
	for rows.Next() {
		e, err := scanMemory(rows)
		if err != nil {
			return nil, memory.NewPersistenceError("scan memory", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewPersistenceError("iterate memories", err)
	}
	s.logger.Debug().Str("method", "ListMemories").Int("count", len(out)).Msg("listed")
	return out, nil
}

// ListMemoryIDs returns ids oldest first, bounded by limit when positive.
func (s *Store) ListMemoryIDs(ctx context.Context, limit int) ([]string, error) {
	return s.listIDs(ctx, StatementBuilder().Select("id").From("memories").OrderBy("created_at", "id"), limit)
}

// ListMemoryIDsAfter returns ids greater than after in id order.
func (s *Store) ListMemoryIDsAfter(ctx context.Context, after string, limit int) ([]string, error) {
	query := StatementBuilder().Select("id").From("memories").OrderBy("id")
	if after != "" {
		query = query.Where(sq.Gt{"id": after})
	}
	return s.listIDs(ctx, query, limit)
}

func (s *Store) listIDs(ctx context.Context, query sq.SelectBuilder, limit int) ([]string, error) {
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, memory.NewPersistenceError("list memory ids", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, memory.NewPersistenceError("scan memory id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewPersistenceError("iterate memory ids", err)
	}
	return ids, nil
}

// TouchMemory records one access in a single statement so concurrent
// retrievals never lose an increment.
func (s *Store) TouchMemory(ctx context.Context, id string, at time.Time) (*memory.Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memory.NewPersistenceError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := StatementBuilder().
		Update("memories").
		Set("access_count", sq.Expr("access_count + 1")).
		Set("last_accessed", toUnix(at)).
		Where(sq.Eq{"id": id}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error().Str("method", "TouchMemory").Str("id", id).Err(err).Msg("Failed to record access")
		return nil, memory.NewPersistenceError("record access", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	e, err := s.getMemory(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, memory.NewPersistenceError("commit access", err)
	}
	return e, nil
}

// ApplyTransition moves a memory to t.To and appends the audit row.
func (s *Store) ApplyTransition(ctx context.Context, t memory.TierTransition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.NewPersistenceError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := StatementBuilder().
		Update("memories").
		Set("tier", string(t.To)).
		Where(sq.Eq{"id": t.MemoryID}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		s.logger.Error().Str("method", "ApplyTransition").Str("id", t.MemoryID).Err(err).Msg("Failed to set tier")
		return memory.NewPersistenceError("set tier", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memory.NewNotFoundError(fmt.Sprintf("memory %s not found", t.MemoryID))
	}
	if _, err := StatementBuilder().
		Insert("tier_transitions").
		Columns("memory_id", "from_tier", "to_tier", "reason", "score", "at").
		Values(t.MemoryID, string(t.From), string(t.To), string(t.Reason), t.Score, toUnix(t.At)).
		RunWith(tx).
		ExecContext(ctx); err != nil {
		return memory.NewPersistenceError("record tier transition", err)
	}
	if err := tx.Commit(); err != nil {
		return memory.NewPersistenceError("commit tier transition", err)
	}
	return nil
}

// ListTransitions returns audit rows newest first. An empty memoryID lists all.
func (s *Store) ListTransitions(ctx context.Context, memoryID string, limit int) ([]memory.TierTransition, error) {
	query := StatementBuilder().
		Select("memory_id", "from_tier", "to_tier", "reason", "score", "at").
		From("tier_transitions").
		OrderBy("at DESC", "id DESC")
	if memoryID != "" {
		query = query.Where(sq.Eq{"memory_id": memoryID})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, memory.NewPersistenceError("list tier transitions", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var out []memory.TierTransition
	for rows.Next() {
		var (
			t             memory.TierTransition
			from, to, why string
			at            int64
		)
		if err := rows.Scan(&t.MemoryID, &from, &to, &why, &t.Score, &at); err != nil {
			return nil, memory.NewPersistenceError("scan tier transition", err)
		}
		t.From, t.To, t.Reason, t.At = memory.Tier(from), memory.Tier(to), memory.TransitionReason(why), fromUnix(at)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewPersistenceError("iterate tier transitions", err)
	}
	return out, nil
}

// CountMemories aggregates memory counts by type and tier.
func (s *Store) CountMemories(ctx context.Context) (memory.Counts, error) {
	counts := memory.Counts{ByType: map[memory.Type]int{}, ByTier: map[memory.Tier]int{}}
	rows, err := StatementBuilder().
		Select("type", "tier", "COUNT(*)").
		From("memories").
		GroupBy("type", "tier").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return counts, memory.NewPersistenceError("count memories", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	for rows.Next() {
		var (
			typ, tier string
			n         int
		)
		if err := rows.Scan(&typ, &tier, &n); err != nil {
			return counts, memory.NewPersistenceError("scan memory count", err)
		}
		counts.Total += n
		counts.ByType[memory.Type(typ)] += n
		counts.ByTier[memory.Tier(tier)] += n
	}
	if err := rows.Err(); err != nil {
		return counts, memory.NewPersistenceError("iterate memory counts", err)
	}
	return counts, nil
}
