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

// StorePattern inserts or replaces a pattern, keyed by id. Merge-on-write
// by structural key is the caller's responsibility (internal/extraction);
// this method is a plain upsert.
func (s *Store) StorePattern(ctx context.Context, p *model.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return memerr.Wrap(memerr.KindSerialization, err, "marshal pattern").WithBackend("durable")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.withConn(ctx, func(c *sql.Conn) error {
		_, err := c.ExecContext(ctx, `
			INSERT INTO patterns (id, kind, structural_key, success_rate, payload_blob, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				structural_key = excluded.structural_key,
				success_rate = excluded.success_rate,
				payload_blob = excluded.payload_blob,
				updated_at = excluded.updated_at`,
			p.ID.String(), string(p.Kind), p.StructuralKey(), p.SuccessRate, payload, now, now)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "store pattern %s", p.ID).WithBackend("durable")
		}
		return nil
	})
}

// GetPattern fetches one pattern by id.
func (s *Store) GetPattern(ctx context.Context, id uuid.UUID) (*model.Pattern, error) {
	var p *model.Pattern
	err := s.withConn(ctx, func(c *sql.Conn) error {
		var payload []byte
		err := c.QueryRowContext(ctx, "SELECT payload_blob FROM patterns WHERE id = ?", id.String()).Scan(&payload)
		if err == sql.ErrNoRows {
			return memerr.NotFound("pattern", id.String())
		}
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "get pattern %s", id).WithBackend("durable")
		}
		var pat model.Pattern
		if err := json.Unmarshal(payload, &pat); err != nil {
			return memerr.Wrap(memerr.KindSerialization, err, "unmarshal pattern %s", id).WithBackend("durable")
		}
		p = &pat
		return nil
	})
	return p, err
}

// ListPatterns returns up to limit patterns, most recently updated first.
func (s *Store) ListPatterns(ctx context.Context, limit int) ([]*model.Pattern, error) {
	limit, _ = clampPage(limit, 0)
	var pats []*model.Pattern
	err := s.withConn(ctx, func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, "SELECT payload_blob FROM patterns ORDER BY updated_at DESC LIMIT ?", limit)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "list patterns").WithBackend("durable")
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return memerr.Wrap(memerr.KindStorage, err, "scan pattern").WithBackend("durable")
			}
			var pat model.Pattern
			if err := json.Unmarshal(payload, &pat); err != nil {
				return memerr.Wrap(memerr.KindSerialization, err, "unmarshal pattern").WithBackend("durable")
			}
			pats = append(pats, &pat)
		}
		return rows.Err()
	})
	return pats, err
}

// FindPatternByStructuralKey looks up the single pattern of a given kind
// whose structural key matches, used by the merge-on-write extraction
// pipeline to decide insert vs. increment.
func (s *Store) FindPatternByStructuralKey(ctx context.Context, kind model.PatternKind, key string) (*model.Pattern, error) {
	var p *model.Pattern
	err := s.withConn(ctx, func(c *sql.Conn) error {
		var payload []byte
		err := c.QueryRowContext(ctx,
			"SELECT payload_blob FROM patterns WHERE kind = ? AND structural_key = ?", string(kind), key,
		).Scan(&payload)
		if err == sql.ErrNoRows {
			return memerr.NotFound("pattern", key)
		}
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "find pattern by structural key").WithBackend("durable")
		}
		var pat model.Pattern
		if err := json.Unmarshal(payload, &pat); err != nil {
			return memerr.Wrap(memerr.KindSerialization, err, "unmarshal pattern").WithBackend("durable")
		}
		p = &pat
		return nil
	})
	return p, err
}
