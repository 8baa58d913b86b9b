package cachestore

import (
	"context"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// StoreHeuristic upserts a heuristic's gob encoding under its id.
func (s *Store) StoreHeuristic(ctx context.Context, h *model.Heuristic) error {
	data, err := encode(h)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHeuristics).Put(idKey(h.ID), data)
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "store heuristic %s", h.ID).WithBackend("cache")
	}
	return nil
}

// GetHeuristic fetches one heuristic by id.
func (s *Store) GetHeuristic(ctx context.Context, id uuid.UUID) (*model.Heuristic, error) {
	var h model.Heuristic
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketHeuristics).Get(idKey(id))
		if data == nil {
			return memerr.NotFound("heuristic", id.String())
		}
		return decode(data, &h)
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHeuristics returns up to limit cached heuristics.
func (s *Store) ListHeuristics(ctx context.Context, limit int) ([]*model.Heuristic, error) {
	limit, _ = clampPage(limit, 0)
	var out []*model.Heuristic
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHeuristics).ForEach(func(_, v []byte) error {
			if len(out) >= limit {
				return nil
			}
			var h model.Heuristic
			if err := decode(v, &h); err != nil {
				return err
			}
			out = append(out, &h)
			return nil
		})
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "list heuristics").WithBackend("cache")
	}
	return out, nil
}
