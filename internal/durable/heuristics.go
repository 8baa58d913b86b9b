package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// StoreHeuristic inserts or replaces a heuristic, keyed by id.
func (s *Store) StoreHeuristic(ctx context.Context, h *model.Heuristic) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return memerr.Wrap(memerr.KindSerialization, err, "marshal heuristic").WithBackend("durable")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.withConn(ctx, func(c *sql.Conn) error {
		_, err := c.ExecContext(ctx, `
			INSERT INTO heuristics (id, condition, action, confidence, payload_blob, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				condition = excluded.condition,
				action = excluded.action,
				confidence = excluded.confidence,
				payload_blob = excluded.payload_blob,
				updated_at = excluded.updated_at`,
			h.ID.String(), h.Condition, h.Action, h.Confidence, payload, now, now)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "store heuristic %s", h.ID).WithBackend("durable")
		}
		return nil
	})
}

// GetHeuristic fetches one heuristic by id.
func (s *Store) GetHeuristic(ctx context.Context, id uuid.UUID) (*model.Heuristic, error) {
	var h *model.Heuristic
	err := s.withConn(ctx, func(c *sql.Conn) error {
		var payload []byte
		err := c.QueryRowContext(ctx, "SELECT payload_blob FROM heuristics WHERE id = ?", id.String()).Scan(&payload)
		if err == sql.ErrNoRows {
			return memerr.NotFound("heuristic", id.String())
		}
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "get heuristic %s", id).WithBackend("durable")
		}
		var hx model.Heuristic
		if err := json.Unmarshal(payload, &hx); err != nil {
			return memerr.Wrap(memerr.KindSerialization, err, "unmarshal heuristic %s", id).WithBackend("durable")
		}
		h = &hx
		return nil
	})
	return h, err
}

// ListHeuristics returns up to limit heuristics, highest confidence first.
func (s *Store) ListHeuristics(ctx context.Context, limit int) ([]*model.Heuristic, error) {
	limit, _ = clampPage(limit, 0)
	var hs []*model.Heuristic
	err := s.withConn(ctx, func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, "SELECT payload_blob FROM heuristics ORDER BY confidence DESC LIMIT ?", limit)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "list heuristics").WithBackend("durable")
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return memerr.Wrap(memerr.KindStorage, err, "scan heuristic").WithBackend("durable")
			}
			var hx model.Heuristic
			if err := json.Unmarshal(payload, &hx); err != nil {
				return memerr.Wrap(memerr.KindSerialization, err, "unmarshal heuristic").WithBackend("durable")
			}
			hs = append(hs, &hx)
		}
		return rows.Err()
	})
	return hs, err
}
