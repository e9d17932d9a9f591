package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// driverName is go-sqlite3 with a Unicode-aware fold() SQL function; the
// built-in lower() and LIKE only fold ASCII.
const driverName = "sqlite3_memtier"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

// Store implements memory.Repository on SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ memory.Repository = (*Store)(nil)

// NewStore creates and returns a Store. The schema must already be migrated.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	logger = logger.With().Str("component", "memory_store").Logger()
	logger.Info().Msg("Initializing SQLite memory store")
	return &Store{db: db, logger: logger}
}

// Open opens a SQLite database at path. ":memory:" databases are pinned to a
// single connection so every query sees the same data.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return memory.NewPersistenceError("ping database", err)
	}
	return nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func normalizeTags(tags []string) []string {
	out := lo.Map(tags, func(t string, _ int) string { return memory.NormalizeTag(t) })
	out = lo.Filter(out, func(t string, _ int) bool { return t != "" })
	return lo.Uniq(out)
}

func encodeJSON(v interface{}, empty bool) (interface{}, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (*memory.Entity, error) {
	var (
		e                          memory.Entity
		typ, tier                  string
		tagsJSON, metaJSON         sql.NullString
		created, updated, accessed int64
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Content, &typ, &e.Importance, &tagsJSON, &tier,
		&metaJSON, &created, &updated, &accessed, &e.AccessCount); err != nil {
		return nil, err
	}
	e.Type = memory.Type(typ)
	e.Tier = memory.Tier(tier)
	e.CreatedAt = fromUnix(created)
	e.UpdatedAt = fromUnix(updated)
	e.LastAccessed = fromUnix(accessed)
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &e.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", e.ID, err)
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func scanRelationship(row scanner) (*memory.Relationship, error) {
	var (
		r                          memory.Relationship
		typ                        string
		created, verified, decayed int64
	)
	if err := row.Scan(&r.ID, &r.FromID, &r.ToID, &typ, &r.Strength, &r.Confidence, &r.DecayRate,
		&created, &verified, &decayed); err != nil {
		return nil, err
	}
	r.Type = memory.RelationshipType(typ)
	r.CreatedAt = fromUnix(created)
	r.LastVerified = fromUnix(verified)
	r.DecayedAt = fromUnix(decayed)
	return &r, nil
}

// Helper function to safely truncate strings (for log safety).
func truncateString(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "..."
	}
	return s
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
