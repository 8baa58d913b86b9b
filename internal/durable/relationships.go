package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// AddRelationship inserts a directed edge between two episodes. It
// rejects self-references and duplicate (from, to, type) triples, and
// for acyclic relation types (model.IsAcyclicType) rejects edges that
// would close a cycle.
func (s *Store) AddRelationship(ctx context.Context, r *model.EpisodeRelationship) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.withConn(ctx, func(c *sql.Conn) error {
		if model.IsAcyclicType(r.Type) {
			wouldCycle, err := s.reachableLocked(ctx, c, r.To, r.From, r.Type)
			if err != nil {
				return err
			}
			if wouldCycle {
				return memerr.New(memerr.KindCycleDetected, "relationship %s->%s (%s) would introduce a cycle", r.From, r.To, r.Type)
			}
		}
		payload, err := json.Marshal(r)
		if err != nil {
			return memerr.Wrap(memerr.KindSerialization, err, "marshal relationship").WithBackend("durable")
		}
		_, err = c.ExecContext(ctx, `
			INSERT INTO relationships (id, from_id, to_id, type, priority, payload_blob)
			VALUES (?,?,?,?,?,?)`,
			r.ID.String(), r.From.String(), r.To.String(), string(r.Type), r.Priority, payload)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return memerr.New(memerr.KindDuplicate, "relationship %s->%s (%s) already exists", r.From, r.To, r.Type)
			}
			return memerr.Wrap(memerr.KindStorage, err, "add relationship").WithBackend("durable")
		}
		return nil
	})
}

// reachableLocked reports whether target is reachable from start by
// following edges of relType, used to detect the cycle that adding
// start->target (in addition to already-adding target as "To") would
// create: if To can already reach From, From->To would close a cycle.
func (s *Store) reachableLocked(ctx context.Context, c *sql.Conn, start, target uuid.UUID, relType model.RelationType) (bool, error) {
	visited := map[uuid.UUID]bool{start: true}
	queue := []uuid.UUID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true, nil
		}
		rows, err := c.QueryContext(ctx, "SELECT to_id FROM relationships WHERE from_id = ? AND type = ?", cur.String(), string(relType))
		if err != nil {
			return false, memerr.Wrap(memerr.KindStorage, err, "walk relationship graph").WithBackend("durable")
		}
		var next []uuid.UUID
		for rows.Next() {
			var toStr string
			if err := rows.Scan(&toStr); err != nil {
				rows.Close()
				return false, memerr.Wrap(memerr.KindStorage, err, "scan relationship edge").WithBackend("durable")
			}
			to, err := uuid.Parse(toStr)
			if err != nil {
				continue
			}
			next = append(next, to)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return false, memerr.Wrap(memerr.KindStorage, err, "walk relationship graph").WithBackend("durable")
		}
		for _, n := range next {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false, nil
}

// RemoveRelationship deletes a relationship by id, returning false if it
// did not exist.
func (s *Store) RemoveRelationship(ctx context.Context, id uuid.UUID) (bool, error) {
	var existed bool
	err := s.withConn(ctx, func(c *sql.Conn) error {
		res, err := c.ExecContext(ctx, "DELETE FROM relationships WHERE id = ?", id.String())
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "remove relationship %s", id).WithBackend("durable")
		}
		n, _ := res.RowsAffected()
		existed = n > 0
		return nil
	})
	return existed, err
}

// OutgoingRelationships returns every edge where episodeID is the source.
func (s *Store) OutgoingRelationships(ctx context.Context, episodeID uuid.UUID) ([]*model.EpisodeRelationship, error) {
	return s.relationshipsWhere(ctx, "from_id = ?", episodeID.String())
}

// IncomingRelationships returns every edge where episodeID is the target.
func (s *Store) IncomingRelationships(ctx context.Context, episodeID uuid.UUID) ([]*model.EpisodeRelationship, error) {
	return s.relationshipsWhere(ctx, "to_id = ?", episodeID.String())
}

func (s *Store) relationshipsWhere(ctx context.Context, cond string, arg string) ([]*model.EpisodeRelationship, error) {
	var rels []*model.EpisodeRelationship
	err := s.withConn(ctx, func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, "SELECT payload_blob FROM relationships WHERE "+cond, arg)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "query relationships").WithBackend("durable")
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return memerr.Wrap(memerr.KindStorage, err, "scan relationship").WithBackend("durable")
			}
			var r model.EpisodeRelationship
			if err := json.Unmarshal(payload, &r); err != nil {
				return memerr.Wrap(memerr.KindSerialization, err, "unmarshal relationship").WithBackend("durable")
			}
			rels = append(rels, &r)
		}
		return rows.Err()
	})
	return rels, err
}

// CheckRelationship reports whether the exact (from, to, type) triple
// exists.
func (s *Store) CheckRelationship(ctx context.Context, from, to uuid.UUID, t model.RelationType) (bool, error) {
	var exists bool
	err := s.withConn(ctx, func(c *sql.Conn) error {
		var count int
		err := c.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM relationships WHERE from_id = ? AND to_id = ? AND type = ?",
			from.String(), to.String(), string(t),
		).Scan(&count)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "check relationship").WithBackend("durable")
		}
		exists = count > 0
		return nil
	})
	return exists, err
}

// isUniqueConstraintErr matches on the driver's error text since
// modernc.org/sqlite does not expose a typed constraint-violation
// sentinel the way database/sql itself does for ErrNoRows.
func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
