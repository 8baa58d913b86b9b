package cachestore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/storage"
)

// StoreEpisode upserts an episode's gob encoding under its id.
func (s *Store) StoreEpisode(ctx context.Context, ep *model.Episode) error {
	data, err := encode(ep)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEpisodes).Put(idKey(ep.ID), data)
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "store episode %s", ep.ID).WithBackend("cache")
	}
	return nil
}

// GetEpisode fetches one episode, or NotFound if absent.
func (s *Store) GetEpisode(ctx context.Context, id uuid.UUID) (*model.Episode, error) {
	var ep model.Episode
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEpisodes).Get(idKey(id))
		if data == nil {
			return memerr.NotFound("episode", id.String())
		}
		return decode(data, &ep)
	})
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// DeleteEpisode removes an episode, returning false if it did not exist.
func (s *Store) DeleteEpisode(ctx context.Context, id uuid.UUID) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEpisodes)
		existed = b.Get(idKey(id)) != nil
		return b.Delete(idKey(id))
	})
	if err != nil {
		return false, memerr.Wrap(memerr.KindStorage, err, "delete episode %s", id).WithBackend("cache")
	}
	return existed, nil
}

// ListEpisodes returns a page of episodes ordered by start_time
// descending. The cache holds no secondary index, so listing decodes
// every stored episode before sorting and paging; callers with large
// caches should prefer the durable tier for paged listing.
func (s *Store) ListEpisodes(ctx context.Context, limit, offset int, completedOnly bool) ([]*model.Episode, error) {
	var all []*model.Episode
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEpisodes).ForEach(func(_, v []byte) error {
			var ep model.Episode
			if err := decode(v, &ep); err != nil {
				return err
			}
			if completedOnly && !ep.IsComplete() {
				return nil
			}
			all = append(all, &ep)
			return nil
		})
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "list episodes").WithBackend("cache")
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })
	limit, offset = clampPage(limit, offset)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// QueryEpisodesSince returns every cached episode starting at or after since.
func (s *Store) QueryEpisodesSince(ctx context.Context, since time.Time) ([]*model.Episode, error) {
	var out []*model.Episode
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEpisodes).ForEach(func(_, v []byte) error {
			var ep model.Episode
			if err := decode(v, &ep); err != nil {
				return err
			}
			if !ep.StartTime.Before(since) {
				out = append(out, &ep)
			}
			return nil
		})
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "query episodes since").WithBackend("cache")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// QueryEpisodesByMetadata scans and filters client-side, per §4.3: the
// cache is not expected to support metadata search natively.
func (s *Store) QueryEpisodesByMetadata(ctx context.Context, filter storage.EpisodeFilter) ([]*model.Episode, error) {
	var out []*model.Episode
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEpisodes).ForEach(func(_, v []byte) error {
			var ep model.Episode
			if err := decode(v, &ep); err != nil {
				return err
			}
			if val, ok := ep.Metadata[filter.MetadataKey]; ok && val == filter.MetadataValue {
				out = append(out, &ep)
			}
			return nil
		})
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "query episodes by metadata").WithBackend("cache")
	}
	return out, nil
}

// SetEpisodeTags replaces the tag set on a cached episode in place.
func (s *Store) SetEpisodeTags(ctx context.Context, id uuid.UUID, tags []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEpisodes)
		data := b.Get(idKey(id))
		if data == nil {
			return memerr.NotFound("episode", id.String())
		}
		var ep model.Episode
		if err := decode(data, &ep); err != nil {
			return err
		}
		ep.SetTags(tags)
		encoded, err := encode(&ep)
		if err != nil {
			return err
		}
		return b.Put(idKey(id), encoded)
	})
}

// GetEpisodeTags returns the tag set of a cached episode.
func (s *Store) GetEpisodeTags(ctx context.Context, id uuid.UUID) ([]string, error) {
	ep, err := s.GetEpisode(ctx, id)
	if err != nil {
		return nil, err
	}
	return ep.GetTags(), nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
