package cachestore

import (
	"context"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// StorePattern upserts a pattern's gob encoding under its id.
func (s *Store) StorePattern(ctx context.Context, p *model.Pattern) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPatterns).Put(idKey(p.ID), data)
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "store pattern %s", p.ID).WithBackend("cache")
	}
	return nil
}

// GetPattern fetches one pattern by id.
func (s *Store) GetPattern(ctx context.Context, id uuid.UUID) (*model.Pattern, error) {
	var p model.Pattern
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPatterns).Get(idKey(id))
		if data == nil {
			return memerr.NotFound("pattern", id.String())
		}
		return decode(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPatterns returns up to limit cached patterns.
func (s *Store) ListPatterns(ctx context.Context, limit int) ([]*model.Pattern, error) {
	limit, _ = clampPage(limit, 0)
	var out []*model.Pattern
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPatterns).ForEach(func(_, v []byte) error {
			if len(out) >= limit {
				return nil
			}
			var p model.Pattern
			if err := decode(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "list patterns").WithBackend("cache")
	}
	return out, nil
}

// FindPatternByStructuralKey scans cached patterns of the given kind for
// a matching structural key.
func (s *Store) FindPatternByStructuralKey(ctx context.Context, kind model.PatternKind, key string) (*model.Pattern, error) {
	var found *model.Pattern
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPatterns).ForEach(func(_, v []byte) error {
			if found != nil {
				return nil
			}
			var p model.Pattern
			if err := decode(v, &p); err != nil {
				return err
			}
			if p.Kind == kind && p.StructuralKey() == key {
				found = &p
			}
			return nil
		})
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "find pattern by structural key").WithBackend("cache")
	}
	if found == nil {
		return nil, memerr.NotFound("pattern", key)
	}
	return found, nil
}
