package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// AddRelationship adds a directed, typed edge between two episodes. The
// durable tier is the source of truth for self-reference, duplicate-
// triple and (for acyclic types) cycle rejection; the cache tier mirrors
// whatever the durable tier accepted.
func (m *SelfLearningMemory) AddRelationship(ctx context.Context, r *model.EpisodeRelationship) error {
	if err := m.durableStore.AddRelationship(ctx, r); err != nil {
		return err
	}
	if err := m.cacheStore.AddRelationship(ctx, r); err != nil {
		m.logger.Warn("cache mirror of relationship failed", "relationship_id", r.ID, "error", err)
	}
	return nil
}

// RemoveRelationship deletes a relationship by id from both tiers.
func (m *SelfLearningMemory) RemoveRelationship(ctx context.Context, id uuid.UUID) (bool, error) {
	existed, err := m.durableStore.RemoveRelationship(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := m.cacheStore.RemoveRelationship(ctx, id); err != nil {
		m.logger.Warn("cache mirror removal failed", "relationship_id", id, "error", err)
	}
	return existed, nil
}

// FindRelated returns every relationship touching episodeID, in either
// direction.
func (m *SelfLearningMemory) FindRelated(ctx context.Context, episodeID uuid.UUID) ([]*model.EpisodeRelationship, error) {
	out, err := m.durableStore.OutgoingRelationships(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	in, err := m.durableStore.IncomingRelationships(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	return append(out, in...), nil
}

// relationshipGraph builds the adjacency list of every edge of relType
// across all known episodes, scanning each episode's outgoing edges.
// AddRelationship's insert-time check only ever rejects cycles
// involving the edge being inserted; this whole-graph build is what lets
// ValidateNoCycles and TopologicalOrder answer a standalone question
// about the graph's current state.
func (m *SelfLearningMemory) relationshipGraph(ctx context.Context, relType model.RelationType) (map[uuid.UUID][]uuid.UUID, error) {
	episodes, err := m.durableStore.ListEpisodes(ctx, allEpisodesLimit, 0, false)
	if err != nil {
		return nil, err
	}

	adjacency := make(map[uuid.UUID][]uuid.UUID)
	for _, ep := range episodes {
		edges, err := m.durableStore.OutgoingRelationships(ctx, ep.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range edges {
			if r.Type != relType {
				continue
			}
			adjacency[r.From] = append(adjacency[r.From], r.To)
			if _, ok := adjacency[r.To]; !ok {
				adjacency[r.To] = nil
			}
		}
	}
	return adjacency, nil
}

// ValidateNoCycles reports whether the induced subgraph of every edge
// of relType currently contains a cycle, independent of any specific
// prospective new edge.
func (m *SelfLearningMemory) ValidateNoCycles(ctx context.Context, relType model.RelationType) error {
	adjacency, err := m.relationshipGraph(ctx, relType)
	if err != nil {
		return err
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[uuid.UUID]int, len(adjacency))

	var visit func(node uuid.UUID) bool
	visit = func(node uuid.UUID) bool {
		switch state[node] {
		case visiting:
			return true
		case done:
			return false
		}
		state[node] = visiting
		for _, next := range adjacency[node] {
			if visit(next) {
				return true
			}
		}
		state[node] = done
		return false
	}

	for node := range adjacency {
		if state[node] == unvisited && visit(node) {
			return memerr.New(memerr.KindCycleDetected, "relationship graph for type %q contains a cycle", relType)
		}
	}
	return nil
}

// TopologicalOrder returns every episode id touched by an edge of
// relType in dependency order (an edge A->B places A before B),
// via Kahn's algorithm. It fails with KindCycleDetected if the
// induced subgraph is not a DAG.
func (m *SelfLearningMemory) TopologicalOrder(ctx context.Context, relType model.RelationType) ([]uuid.UUID, error) {
	adjacency, err := m.relationshipGraph(ctx, relType)
	if err != nil {
		return nil, err
	}

	inDegree := make(map[uuid.UUID]int, len(adjacency))
	for node := range adjacency {
		if _, ok := inDegree[node]; !ok {
			inDegree[node] = 0
		}
	}
	for _, targets := range adjacency {
		for _, t := range targets {
			inDegree[t]++
		}
	}

	var queue []uuid.UUID
	for node, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, node)
		}
	}

	var order []uuid.UUID
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, next := range adjacency[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(inDegree) {
		return nil, memerr.New(memerr.KindCycleDetected, "relationship graph for type %q contains a cycle", relType)
	}
	return order, nil
}
