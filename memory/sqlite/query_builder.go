package sqlite

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// StatementBuilder returns a Squirrel StatementBuilder configured for SQLite.
// SQLite uses '?' as placeholders, which is Squirrel's default.
func StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder
}

var memoryColumns = []string{
	"id", "owner_id", "content", "type", "importance", "tags_json", "tier",
	"metadata", "created_at", "updated_at", "last_accessed", "access_count",
}

var relationshipColumns = []string{
	"id", "from_id", "to_id", "type", "strength", "confidence", "decay_rate",
	"created_at", "last_verified", "decayed_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildFilterWhere builds Squirrel WHERE conditions from a ListFilter.
func buildFilterWhere(f memory.ListFilter) sq.Sqlizer {
	var conditions sq.And

	if f.OwnerID != "" {
		conditions = append(conditions, sq.Eq{"owner_id": f.OwnerID})
	}
	if len(f.IDs) > 0 {
		conditions = append(conditions, sq.Eq{"id": f.IDs})
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, sq.Eq{"type": types})
	}
	if len(f.Tiers) > 0 {
		tiers := make([]string, len(f.Tiers))
		for i, t := range f.Tiers {
			tiers[i] = string(t)
		}
		conditions = append(conditions, sq.Eq{"tier": tiers})
	}
	if f.MinImportance > 0 {
		conditions = append(conditions, sq.GtOrEq{"importance": f.MinImportance})
	}
	if f.CreatedAfter != nil {
		conditions = append(conditions, sq.GtOrEq{"created_at": toUnix(*f.CreatedAfter)})
	}
	if f.CreatedBefore != nil {
		conditions = append(conditions, sq.LtOrEq{"created_at": toUnix(*f.CreatedBefore)})
	}
	if tags := normalizeTags(f.Tags); len(tags) > 0 {
		args := make([]interface{}, len(tags))
		for i, t := range tags {
			args[i] = t
		}
		conditions = append(conditions, sq.Expr(
			"id IN (SELECT memory_id FROM memory_tags WHERE tag IN ("+sq.Placeholders(len(tags))+"))",
			args...,
		))
	}
	if len(f.ContentTerms) > 0 {
		var terms sq.Or
		for _, term := range f.ContentTerms {
			if strings.TrimSpace(term) == "" {
				continue
			}
			terms = append(terms, sq.Expr(`fold(content) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(term))+"%"))
		}
		if len(terms) > 0 {
			conditions = append(conditions, terms)
		}
	}

	if len(conditions) == 0 {
		return sq.Expr("1=1")
	}
	return conditions
}
