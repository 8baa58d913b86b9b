package cachestore

import (
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// StoreEpisodesBatch persists every episode inside a single bbolt
// transaction: either all commit or none do.
func (s *Store) StoreEpisodesBatch(ctx context.Context, eps []*model.Episode) error {
	for _, ep := range eps {
		if err := ep.Validate(); err != nil {
			return err
		}
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEpisodes)
		for _, ep := range eps {
			data, err := encode(ep)
			if err != nil {
				return err
			}
			if err := b.Put(idKey(ep.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "store episodes batch").WithBackend("cache")
	}
	return nil
}

// StorePatternsBatch persists every pattern inside a single bbolt transaction.
func (s *Store) StorePatternsBatch(ctx context.Context, pats []*model.Pattern) error {
	for _, p := range pats {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPatterns)
		for _, p := range pats {
			data, err := encode(p)
			if err != nil {
				return err
			}
			if err := b.Put(idKey(p.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "store patterns batch").WithBackend("cache")
	}
	return nil
}
