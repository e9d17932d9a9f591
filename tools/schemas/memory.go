package schemas

var (
	memoryTypes       = []string{"text", "image", "audio", "video", "file"}
	tiers             = []string{"hot", "warm", "cold"}
	relationshipTypes = []string{"references", "similar", "related", "causal", "temporal"}
)

func filterProps(props map[string]any) map[string]any {
	props["owner_id"] = str("Only memories of this owner. Defaults to the caller.")
	props["types"] = map[string]any{"type": "array", "items": map[string]any{"type": "string", "enum": memoryTypes}}
	props["tiers"] = map[string]any{"type": "array", "items": map[string]any{"type": "string", "enum": tiers}}
	props["tags"] = strList("Memories must carry every one of these tags.")
	props["min_importance"] = num("Minimum importance, 0-100.")
	props["created_after"] = str("RFC3339 timestamp.")
	props["created_before"] = str("RFC3339 timestamp.")
	props["limit"] = num("Maximum number of results (default 10).")
	return props
}

func refreshFilterProps() map[string]any {
	props := filterProps(map[string]any{})
	delete(props, "limit")
	return props
}

func idOnly(desc string) map[string]any {
	return object([]string{"id"}, map[string]any{"id": str(desc)})
}

func noArgs() map[string]any {
	return object(nil, map[string]any{})
}

// MemorySchemas returns schemas for memory-related tools.
func MemorySchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"memory_create": {
			Description: "Store a new memory. It starts in the cold tier and is promoted as it is used.",
			Schema: object([]string{"content"}, map[string]any{
				"content":    str("Text of the memory."),
				"owner_id":   str("Owner of the memory. Defaults to the caller."),
				"type":       map[string]any{"type": "string", "enum": memoryTypes},
				"importance": num("Importance from 0 to 100 (default 50)."),
				"tags":       strList("Tags; normalized to lower case."),
				"metadata":   map[string]any{"type": "object", "description": "Arbitrary JSON metadata."},
			}),
		},
		"memory_retrieve": {
			Description: "Fetch a memory by id and record the access.",
			Schema:      idOnly("Memory id."),
		},
		"memory_update": {
			Description: "Change fields of a memory. Omitted fields are left alone; a null metadata value removes the key.",
			Schema: object([]string{"id"}, map[string]any{
				"id":         str("Memory id."),
				"content":    str("Replacement text."),
				"type":       map[string]any{"type": "string", "enum": memoryTypes},
				"importance": num("Importance from 0 to 100."),
				"tags":       strList("Replacement tag set."),
				"metadata":   map[string]any{"type": "object", "description": "Keys to merge into metadata."},
			}),
		},
		"memory_delete": {
			Description: "Delete a memory and every relationship touching it. Deleting twice is not an error.",
			Schema:      idOnly("Memory id."),
		},
		"memory_search": {
			Description: "Search memories by text. Set semantic to blend in embedding similarity.",
			Schema: object([]string{"query"}, filterProps(map[string]any{
				"query":     str("Search text."),
				"offset":    num("Results to skip."),
				"semantic":  map[string]any{"type": "boolean", "description": "Blend lexical and semantic scores."},
				"threshold": num("Minimum similarity for the semantic half, -1 to 1."),
			})),
		},
		"memory_semantic_search": {
			Description: "Search memories by embedding similarity. Falls back to text search when embeddings are unavailable.",
			Schema: object([]string{"query"}, filterProps(map[string]any{
				"query":     str("Search text."),
				"threshold": num("Minimum cosine similarity, -1 to 1 (default 0.5)."),
			})),
		},
		"memory_set_tier": {
			Description: "Move a memory to a storage tier.",
			Schema: object([]string{"id", "tier"}, map[string]any{
				"id":   str("Memory id."),
				"tier": enum("Target tier.", tiers...),
			}),
		},
		"memory_transitions": {
			Description: "List the tier changes recorded for a memory, newest first.",
			Schema: object([]string{"id"}, map[string]any{
				"id":    str("Memory id."),
				"limit": num("Maximum number of transitions."),
			}),
		},
		"memory_optimize": {
			Description: "Score every memory and move each to its recommended tier.",
			Schema:      noArgs(),
		},
		"memory_tier_metrics": {
			Description: "Report tier counts and the last optimization pass.",
			Schema:      noArgs(),
		},
		"memory_score": {
			Description: "Compute the tier score of a memory and its recommended tier.",
			Schema:      idOnly("Memory id."),
		},
		"memory_relate": {
			Description: "Create a relationship between two memories, or refresh it if one of the same type exists.",
			Schema: object([]string{"from_id", "to_id", "type", "strength", "confidence"}, map[string]any{
				"from_id":    str("Source memory id."),
				"to_id":      str("Target memory id."),
				"type":       enum("Relationship type.", relationshipTypes...),
				"strength":   num("Strength from 0 to 1."),
				"confidence": num("Confidence from 0 to 1."),
				"decay_rate": num("Strength lost per decay interval. Defaults to the configured rate."),
			}),
		},
		"memory_relationship_strength": {
			Description: "Set the strength of a relationship.",
			Schema: object([]string{"id", "strength"}, map[string]any{
				"id":       str("Relationship id."),
				"strength": num("Strength from 0 to 1."),
			}),
		},
		"memory_unrelate": {
			Description: "Delete a relationship.",
			Schema:      idOnly("Relationship id."),
		},
		"memory_related": {
			Description: "List memories reachable from a memory through relationships.",
			Schema: object([]string{"id"}, map[string]any{
				"id":           str("Memory id."),
				"max_depth":    num("Maximum hops (default 2)."),
				"min_strength": num("Skip relationships weaker than this."),
				"types": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string", "enum": relationshipTypes},
				},
				"sort_by": enum("Result order.", "strength", "confidence", "recency"),
				"limit":   num("Maximum results."),
			}),
		},
		"memory_path": {
			Description: "Find the shortest relationship path between two memories.",
			Schema: object([]string{"from_id", "to_id"}, map[string]any{
				"from_id": str("Start memory id."),
				"to_id":   str("End memory id."),
			}),
		},
		"memory_discover": {
			Description: "Propose relationships between a memory and its neighbours. With auto_create the proposals are stored.",
			Schema: object([]string{"id"}, map[string]any{
				"id":          str("Memory id."),
				"auto_create": map[string]any{"type": "boolean", "description": "Store the proposed relationships."},
			}),
		},
		"memory_graph_analytics": {
			Description: "Summarize the relationship graph: density, clusters and the most connected memory.",
			Schema:      noArgs(),
		},
		"memory_decay": {
			Description: "Apply time decay to relationship strengths and prune exhausted relationships.",
			Schema:      noArgs(),
		},
		"memory_embed_missing": {
			Description: "Compute embeddings for memories that have none for the current model or whose content changed.",
			Schema:      object(nil, refreshFilterProps()),
		},
		"memory_health": {
			Description: "Report engine health, memory counts and cache usage.",
			Schema:      noArgs(),
		},
	}
}
