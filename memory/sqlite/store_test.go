package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/memory"
	"github.com/aschepis/backscratcher/memtier/migrations"
)

// setupTestDB creates an in-memory database and runs migrations
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := migrations.RunMigrations(db, zerolog.Nop()); err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newEntity(id, owner, content string, importance int, created time.Time, tags ...string) *memory.Entity {
	return &memory.Entity{
		ID:           id,
		OwnerID:      owner,
		Content:      content,
		Type:         memory.TypeText,
		Importance:   importance,
		Tags:         tags,
		Tier:         memory.TierCold,
		CreatedAt:    created,
		UpdatedAt:    created,
		LastAccessed: created,
	}
}

func TestStore_CreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t), zerolog.Nop())

	e := newEntity("m1", "alice", "Buy oat milk", 40, epoch, "Groceries", "errands")
	e.Metadata = map[string]interface{}{"source": "chat"}
	if err := store.CreateMemory(ctx, e); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	got, err := store.GetMemory(ctx, "m1")
	if err != nil || got == nil {
		t.Fatalf("GetMemory: %v, %v", got, err)
	}
	if got.Content != e.Content || got.OwnerID != "alice" || got.Importance != 40 {
		t.Fatalf("unexpected entity: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "Groceries" {
		t.Fatalf("tags should keep display order: %v", got.Tags)
	}
	if got.Metadata["source"] != "chat" {
		t.Fatalf("metadata not restored: %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(epoch) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, epoch)
	}

	got.Content = "Buy soy milk"
	got.Tags = []string{"shopping"}
	got.UpdatedAt = epoch.Add(time.Hour)
	if err := store.UpdateMemory(ctx, got); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}
	byTag, err := store.ListMemories(ctx, memory.ListFilter{Tags: []string{"SHOPPING"}})
	if err != nil || len(byTag) != 1 {
		t.Fatalf("tag filter after update: %d, %v", len(byTag), err)
	}
	byOldTag, _ := store.ListMemories(ctx, memory.ListFilter{Tags: []string{"groceries"}})
	if len(byOldTag) != 0 {
		t.Fatalf("old tags should be replaced, got %d", len(byOldTag))
	}

	missing := newEntity("nope", "alice", "x", 1, epoch)
	if err := store.UpdateMemory(ctx, missing); !memory.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	ok, err := store.DeleteMemory(ctx, "m1")
	if err != nil || !ok {
		t.Fatalf("DeleteMemory first call = %v, %v", ok, err)
	}
	ok, err = store.DeleteMemory(ctx, "m1")
	if err != nil || ok {
		t.Fatalf("DeleteMemory second call = %v, %v", ok, err)
	}
	if got, _ := store.GetMemory(ctx, "m1"); got != nil {
		t.Fatalf("memory still present after delete")
	}
}

func TestStore_ListMemoriesFilters(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t), zerolog.Nop())

	fixtures := []*memory.Entity{
		newEntity("a", "alice", "Machine learning notes", 90, epoch),
		newEntity("b", "alice", "Grocery list: 100% juice", 20, epoch.Add(time.Hour)),
		newEntity("c", "bob", "Deep learning paper", 60, epoch.Add(2*time.Hour)),
	}
	fixtures[2].Type = memory.TypeFile
	fixtures[2].Tier = memory.TierHot
	for _, e := range fixtures {
		if err := store.CreateMemory(ctx, e); err != nil {
			t.Fatalf("CreateMemory(%s): %v", e.ID, err)
		}
	}

	after := epoch.Add(30 * time.Minute)
	tests := []struct {
		name   string
		filter memory.ListFilter
		want   []string
	}{
		{"all newest first", memory.ListFilter{}, []string{"c", "b", "a"}},
		{"owner", memory.ListFilter{OwnerID: "alice"}, []string{"b", "a"}},
		{"type", memory.ListFilter{Types: []memory.Type{memory.TypeFile}}, []string{"c"}},
		{"tier", memory.ListFilter{Tiers: []memory.Tier{memory.TierCold}}, []string{"b", "a"}},
		{"importance", memory.ListFilter{MinImportance: 50}, []string{"c", "a"}},
		{"created after", memory.ListFilter{CreatedAfter: &after}, []string{"c", "b"}},
		{"content terms", memory.ListFilter{ContentTerms: []string{"learning"}}, []string{"c", "a"}},
		{"like is escaped", memory.ListFilter{ContentTerms: []string{"100%"}}, []string{"b"}},
		{"pagination", memory.ListFilter{Limit: 1, Offset: 1}, []string{"b"}},
		{"offset only", memory.ListFilter{Offset: 2}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListMemories(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListMemories: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("result %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	ids, err := store.ListMemoryIDs(ctx, 2)
	if err != nil || len(ids) != 2 || ids[0] != "a" {
		t.Fatalf("ListMemoryIDs = %v, %v", ids, err)
	}

	counts, err := store.CountMemories(ctx)
	if err != nil {
		t.Fatalf("CountMemories: %v", err)
	}
	if counts.Total != 3 || counts.ByTier[memory.TierCold] != 2 || counts.ByType[memory.TypeFile] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestStore_TouchAndTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t), zerolog.Nop())
	if err := store.CreateMemory(ctx, newEntity("m", "alice", "hello", 10, epoch)); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.TouchMemory(ctx, "m", epoch.Add(time.Duration(i+1)*time.Minute)); err != nil {
			t.Fatalf("TouchMemory: %v", err)
		}
	}
	got, _ := store.GetMemory(ctx, "m")
	if got.AccessCount != 3 || !got.LastAccessed.Equal(epoch.Add(3*time.Minute)) {
		t.Fatalf("access tracking wrong: count=%d last=%v", got.AccessCount, got.LastAccessed)
	}
	if e, err := store.TouchMemory(ctx, "absent", epoch); e != nil || err != nil {
		t.Fatalf("touching absent memory = %v, %v", e, err)
	}

	tr := memory.TierTransition{MemoryID: "m", From: memory.TierCold, To: memory.TierHot, Reason: memory.ReasonManual, At: epoch}
	if err := store.ApplyTransition(ctx, tr); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	got, _ = store.GetMemory(ctx, "m")
	if got.Tier != memory.TierHot {
		t.Fatalf("tier = %s, want hot", got.Tier)
	}
	if !got.UpdatedAt.Equal(epoch) {
		t.Fatalf("tier change must not touch updated_at")
	}
	log, err := store.ListTransitions(ctx, "m", 0)
	if err != nil || len(log) != 1 || log[0].Reason != memory.ReasonManual {
		t.Fatalf("ListTransitions = %+v, %v", log, err)
	}
	tr.MemoryID = "absent"
	if err := store.ApplyTransition(ctx, tr); !memory.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_Relationships(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t), zerolog.Nop())

	r := &memory.Relationship{
		ID: "r1", FromID: "a", ToID: "b", Type: memory.RelRelated,
		Strength: 0.8, Confidence: 0.9, DecayRate: 0.1,
		CreatedAt: epoch, LastVerified: epoch, DecayedAt: epoch,
	}
	if err := store.CreateRelationship(ctx, r); err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}
	dup := *r
	dup.ID = "r2"
	if err := store.CreateRelationship(ctx, &dup); !memory.IsPersistenceError(err) {
		t.Fatalf("duplicate key should fail with persistence error, got %v", err)
	}

	found, err := store.FindRelationship(ctx, "a", "b", memory.RelRelated)
	if err != nil || found == nil || found.ID != "r1" {
		t.Fatalf("FindRelationship = %+v, %v", found, err)
	}
	if none, _ := store.FindRelationship(ctx, "b", "a", memory.RelRelated); none != nil {
		t.Fatalf("key is directional")
	}

	found.Strength = 0.5
	found.DecayedAt = epoch.Add(time.Hour)
	if err := store.UpdateRelationship(ctx, found); err != nil {
		t.Fatalf("UpdateRelationship: %v", err)
	}
	got, _ := store.GetRelationship(ctx, "r1")
	if got.Strength != 0.5 || !got.DecayedAt.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("update not persisted: %+v", got)
	}

	incident, _ := store.ListRelationshipsFor(ctx, "b")
	if len(incident) != 1 {
		t.Fatalf("incident edges for b = %d", len(incident))
	}
	n, err := store.DeleteRelationshipsForMemory(ctx, "a")
	if err != nil || n != 1 {
		t.Fatalf("DeleteRelationshipsForMemory = %d, %v", n, err)
	}
	if ok, _ := store.DeleteRelationship(ctx, "r1"); ok {
		t.Fatalf("edge already removed")
	}
}

func TestStore_Embeddings(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t), zerolog.Nop())

	save := func(id, model, hash string, vec ...float32) {
		t.Helper()
		if err := store.SaveEmbedding(ctx, memory.Embedding{MemoryID: id, Model: model, Vector: vec, ContentHash: hash, CreatedAt: epoch}); err != nil {
			t.Fatalf("SaveEmbedding: %v", err)
		}
	}
	save("a", "m1", "h1", 1, 0)
	save("a", "m1", "h2", 0, 1) // replaces
	save("a", "m2", "h1", 1, 1)
	save("b", "m1", "h3", 0.5, 0.5)

	all, err := store.ListEmbeddings(ctx, "m1", nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListEmbeddings(all) = %d, %v", len(all), err)
	}
	if all["a"].ContentHash != "h2" || all["a"].Vector[1] != 1 {
		t.Fatalf("upsert did not replace vector: %+v", all["a"])
	}
	some, _ := store.ListEmbeddings(ctx, "m2", []string{"a", "b"})
	if len(some) != 1 {
		t.Fatalf("model isolation broken: %d", len(some))
	}

	if err := store.DeleteEmbeddings(ctx, "a"); err != nil {
		t.Fatalf("DeleteEmbeddings: %v", err)
	}
	left, _ := store.ListEmbeddings(ctx, "m1", []string{"a", "b"})
	if _, ok := left["a"]; ok || len(left) != 1 {
		t.Fatalf("embeddings for a should be gone: %v", left)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestStore_ListMemoryIDsAfter(t *testing.T) {
	store := NewStore(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := store.CreateMemory(ctx, newEntity(id, "u", id, 50, epoch)); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}
	ids, err := store.ListMemoryIDsAfter(ctx, "", 2)
	if err != nil || len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("first page = %v, %v", ids, err)
	}
	ids, err = store.ListMemoryIDsAfter(ctx, "b", 2)
	if err != nil || len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("second page = %v, %v", ids, err)
	}
}

func TestStore_ContentTermsFoldNonASCII(t *testing.T) {
	store := NewStore(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()
	for _, e := range []*memory.Entity{
		newEntity("u", "alice", "Über die Brücke planen", 50, epoch),
		newEntity("v", "alice", "ÉTÉ À PARIS", 50, epoch.Add(time.Hour)),
		newEntity("w", "alice", "unrelated", 50, epoch.Add(2*time.Hour)),
	} {
		if err := store.CreateMemory(ctx, e); err != nil {
			t.Fatalf("CreateMemory(%s): %v", e.ID, err)
		}
	}

	tests := []struct {
		term string
		want string
	}{
		{"über", "u"},
		{"BRÜCKE", "u"},
		{"été", "v"},
		{"à paris", "v"},
	}
	for _, tt := range tests {
		got, err := store.ListMemories(ctx, memory.ListFilter{ContentTerms: []string{tt.term}})
		if err != nil {
			t.Fatalf("ListMemories(%q): %v", tt.term, err)
		}
		if len(got) != 1 || got[0].ID != tt.want {
			t.Errorf("ListMemories(%q) = %d results, want [%s]", tt.term, len(got), tt.want)
		}
	}
}
