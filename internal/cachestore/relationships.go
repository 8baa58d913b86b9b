package cachestore

import (
	"context"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// AddRelationship upserts a relationship under its id. Cycle and
// duplicate-triple detection are the durable tier's responsibility
// (the source of truth); the cache mirrors whatever it is given.
func (s *Store) AddRelationship(ctx context.Context, r *model.EpisodeRelationship) error {
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := encode(r)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRelationships).Put(idKey(r.ID), data)
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "add relationship %s", r.ID).WithBackend("cache")
	}
	return nil
}

// RemoveRelationship deletes a relationship by id.
func (s *Store) RemoveRelationship(ctx context.Context, id uuid.UUID) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRelationships)
		existed = b.Get(idKey(id)) != nil
		return b.Delete(idKey(id))
	})
	if err != nil {
		return false, memerr.Wrap(memerr.KindStorage, err, "remove relationship %s", id).WithBackend("cache")
	}
	return existed, nil
}

// OutgoingRelationships scans for every edge whose source is episodeID.
func (s *Store) OutgoingRelationships(ctx context.Context, episodeID uuid.UUID) ([]*model.EpisodeRelationship, error) {
	return s.relationshipsMatching(func(r *model.EpisodeRelationship) bool { return r.From == episodeID })
}

// IncomingRelationships scans for every edge whose target is episodeID.
func (s *Store) IncomingRelationships(ctx context.Context, episodeID uuid.UUID) ([]*model.EpisodeRelationship, error) {
	return s.relationshipsMatching(func(r *model.EpisodeRelationship) bool { return r.To == episodeID })
}

// CheckRelationship reports whether the exact (from, to, type) triple exists.
func (s *Store) CheckRelationship(ctx context.Context, from, to uuid.UUID, t model.RelationType) (bool, error) {
	rels, err := s.relationshipsMatching(func(r *model.EpisodeRelationship) bool {
		return r.From == from && r.To == to && r.Type == t
	})
	if err != nil {
		return false, err
	}
	return len(rels) > 0, nil
}

func (s *Store) relationshipsMatching(pred func(*model.EpisodeRelationship) bool) ([]*model.EpisodeRelationship, error) {
	var out []*model.EpisodeRelationship
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRelationships).ForEach(func(_, v []byte) error {
			var r model.EpisodeRelationship
			if err := decode(v, &r); err != nil {
				return err
			}
			if pred(&r) {
				out = append(out, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "scan relationships").WithBackend("cache")
	}
	return out, nil
}
