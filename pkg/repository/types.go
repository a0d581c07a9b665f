// Package repository provides typed CRUD access to entities, observations,
// and relationships in the knowledge-memory store.
//
// Each of the three types ([Entities], [Observations], [Relationships]) is a
// thin wrapper over a shared [*sql.DB] handle obtained from [pkg/store]. They
// know nothing about embeddings or semantic search — that is the
// [pkg/semanticindex] package's concern — and nothing about dedup, fusion, or
// consolidation policy, which lives in [pkg/engine].
//
// All methods are safe for concurrent use; SQLite's WAL mode permits
// concurrent readers while serializing writers.
package repository

import "time"

// Entity is a named node in the knowledge graph.
type Entity struct {
	ID        string
	Name      string
	Type      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Observation is a free-text fact attached to one entity.
type Observation struct {
	ID        string
	EntityID  string
	Content   string
	Source    string
	CreatedAt time.Time
}

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID           string
	FromEntity   string
	ToEntity     string
	RelationType string
	CreatedAt    time.Time
}

// NeighborInfo describes a single BFS-reachable entity: its hop distance
// from the seed, ID, name, and type.
type NeighborInfo struct {
	ID    string
	Depth int
	Name  string
	Type  string
}

// DefaultRelationType is used when a relationship's type is not specified
// (e.g. auto-detected links created by the write-path dedup algorithm).
const DefaultRelationType = "relates_to"
