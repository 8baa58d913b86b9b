package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/storage"
)

// StoreEpisode inserts or replaces an episode and its tag set, atomically.
func (s *Store) StoreEpisode(ctx context.Context, ep *model.Episode) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	contextBlob, err := s.marshalCompressed(ep.Context)
	if err != nil {
		return err
	}
	stepsBlob, err := s.marshalCompressed(ep.Steps)
	if err != nil {
		return err
	}
	outcomeBlob, err := s.marshalOptional(ep.Outcome)
	if err != nil {
		return err
	}
	rewardBlob, err := s.marshalOptional(ep.Reward)
	if err != nil {
		return err
	}
	reflectionBlob, err := s.marshalOptional(ep.Reflection)
	if err != nil {
		return err
	}
	salientBlob, err := s.marshalOptional(ep.SalientFeatures)
	if err != nil {
		return err
	}
	patternIDsBlob, err := s.marshalCompressed(ep.ExtractedPatternIDs)
	if err != nil {
		return err
	}
	appliedIDsBlob, err := s.marshalCompressed(ep.AppliedPatternIDs)
	if err != nil {
		return err
	}
	heuristicIDsBlob, err := s.marshalCompressed(ep.ExtractedHeuristicIDs)
	if err != nil {
		return err
	}
	metadataBlob, err := s.marshalCompressed(ep.Metadata)
	if err != nil {
		return err
	}

	var endTime any
	if ep.EndTime != nil {
		endTime = ep.EndTime.UTC().Format(time.RFC3339Nano)
	}
	var outcomeKind any
	if ep.Outcome != nil {
		outcomeKind = string(ep.Outcome.Kind)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	return s.withConn(ctx, func(c *sql.Conn) error {
		_, err := c.ExecContext(ctx, `
			INSERT INTO episodes (
				id, description, task_type, start_time, end_time, is_complete,
				outcome_kind, context_blob, steps_blob, outcome_blob, reward_blob,
				reflection_blob, salient_blob, pattern_ids_blob, applied_ids_blob,
				heuristic_ids_blob, metadata_blob, created_at, updated_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				description = excluded.description,
				task_type = excluded.task_type,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				is_complete = excluded.is_complete,
				outcome_kind = excluded.outcome_kind,
				context_blob = excluded.context_blob,
				steps_blob = excluded.steps_blob,
				outcome_blob = excluded.outcome_blob,
				reward_blob = excluded.reward_blob,
				reflection_blob = excluded.reflection_blob,
				salient_blob = excluded.salient_blob,
				pattern_ids_blob = excluded.pattern_ids_blob,
				applied_ids_blob = excluded.applied_ids_blob,
				heuristic_ids_blob = excluded.heuristic_ids_blob,
				metadata_blob = excluded.metadata_blob,
				updated_at = excluded.updated_at`,
			ep.ID.String(), ep.Description, string(ep.TaskType),
			ep.StartTime.UTC().Format(time.RFC3339Nano), endTime, boolToInt(ep.IsComplete()),
			outcomeKind, contextBlob, stepsBlob, outcomeBlob, rewardBlob,
			reflectionBlob, salientBlob, patternIDsBlob, appliedIDsBlob,
			heuristicIDsBlob, metadataBlob, now, now,
		)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "store episode %s", ep.ID).WithBackend("durable")
		}
		if err := s.replaceTagsLocked(ctx, c, ep.ID, ep.GetTags()); err != nil {
			return err
		}
		return nil
	})
}

// GetEpisode fetches one episode by id, or NotFound if absent.
func (s *Store) GetEpisode(ctx context.Context, id uuid.UUID) (*model.Episode, error) {
	var ep *model.Episode
	err := s.withConn(ctx, func(c *sql.Conn) error {
		row := c.QueryRowContext(ctx, episodeSelectCols+" FROM episodes WHERE id = ?", id.String())
		e, err := s.scanEpisode(row)
		if err != nil {
			return err
		}
		ep = e
		tags, err := s.getEpisodeTagsLocked(ctx, c, id)
		if err != nil {
			return err
		}
		ep.SetTags(tags)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// DeleteEpisode removes an episode and its tags, returning false (no
// error) if the id did not exist.
func (s *Store) DeleteEpisode(ctx context.Context, id uuid.UUID) (bool, error) {
	var existed bool
	err := s.withConn(ctx, func(c *sql.Conn) error {
		res, err := c.ExecContext(ctx, "DELETE FROM episodes WHERE id = ?", id.String())
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "delete episode %s", id).WithBackend("durable")
		}
		n, _ := res.RowsAffected()
		existed = n > 0
		if _, err := c.ExecContext(ctx, "DELETE FROM episode_tags WHERE episode_id = ?", id.String()); err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "delete episode tags %s", id).WithBackend("durable")
		}
		return nil
	})
	return existed, err
}

// ListEpisodes returns a page of episodes ordered by start_time
// descending, optionally restricted to completed episodes.
func (s *Store) ListEpisodes(ctx context.Context, limit, offset int, completedOnly bool) ([]*model.Episode, error) {
	limit, offset = clampPage(limit, offset)
	query := episodeSelectCols + " FROM episodes"
	if completedOnly {
		query += " WHERE is_complete = 1"
	}
	query += " ORDER BY start_time DESC LIMIT ? OFFSET ?"

	var eps []*model.Episode
	err := s.withConn(ctx, func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, query, limit, offset)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "list episodes").WithBackend("durable")
		}
		defer rows.Close()
		eps, err = s.scanEpisodes(ctx, c, rows)
		return err
	})
	return eps, err
}

// QueryEpisodesSince returns every episode whose start_time is at or
// after since, ordered ascending.
func (s *Store) QueryEpisodesSince(ctx context.Context, since time.Time) ([]*model.Episode, error) {
	var eps []*model.Episode
	err := s.withConn(ctx, func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, episodeSelectCols+" FROM episodes WHERE start_time >= ? ORDER BY start_time ASC",
			since.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "query episodes since").WithBackend("durable")
		}
		defer rows.Close()
		eps, err = s.scanEpisodes(ctx, c, rows)
		return err
	})
	return eps, err
}

// QueryEpisodesByMetadata returns episodes whose metadata map contains
// filter.MetadataKey mapped to filter.MetadataValue. The durable tier
// scans metadata_blob client-side since it is a compressed JSON blob,
// not an indexed column.
func (s *Store) QueryEpisodesByMetadata(ctx context.Context, filter storage.EpisodeFilter) ([]*model.Episode, error) {
	var matches []*model.Episode
	err := s.withConn(ctx, func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, episodeSelectCols+" FROM episodes ORDER BY start_time DESC")
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "query episodes by metadata").WithBackend("durable")
		}
		defer rows.Close()
		all, err := s.scanEpisodes(ctx, c, rows)
		if err != nil {
			return err
		}
		for _, ep := range all {
			if v, ok := ep.Metadata[filter.MetadataKey]; ok && v == filter.MetadataValue {
				matches = append(matches, ep)
			}
		}
		return nil
	})
	return matches, err
}

// SetEpisodeTags replaces the episode's full tag set.
func (s *Store) SetEpisodeTags(ctx context.Context, id uuid.UUID, tags []string) error {
	return s.withConn(ctx, func(c *sql.Conn) error {
		return s.replaceTagsLocked(ctx, c, id, tags)
	})
}

// GetEpisodeTags returns the tag set for an episode.
func (s *Store) GetEpisodeTags(ctx context.Context, id uuid.UUID) ([]string, error) {
	var tags []string
	err := s.withConn(ctx, func(c *sql.Conn) error {
		t, err := s.getEpisodeTagsLocked(ctx, c, id)
		tags = t
		return err
	})
	return tags, err
}

func (s *Store) replaceTagsLocked(ctx context.Context, c *sql.Conn, id uuid.UUID, tags []string) error {
	if _, err := c.ExecContext(ctx, "DELETE FROM episode_tags WHERE episode_id = ?", id.String()); err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "clear episode tags %s", id).WithBackend("durable")
	}
	for _, tag := range tags {
		if _, err := c.ExecContext(ctx,
			"INSERT OR IGNORE INTO episode_tags (episode_id, tag) VALUES (?, ?)", id.String(), tag); err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "insert episode tag %s", tag).WithBackend("durable")
		}
		if _, err := c.ExecContext(ctx, `
			INSERT INTO tag_metadata (tag, episode_count, last_used) VALUES (?, 1, ?)
			ON CONFLICT(tag) DO UPDATE SET episode_count = episode_count + 1, last_used = excluded.last_used`,
			tag, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "update tag metadata %s", tag).WithBackend("durable")
		}
	}
	return nil
}

func (s *Store) getEpisodeTagsLocked(ctx context.Context, c *sql.Conn, id uuid.UUID) ([]string, error) {
	rows, err := c.QueryContext(ctx, "SELECT tag FROM episode_tags WHERE episode_id = ?", id.String())
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "get episode tags %s", id).WithBackend("durable")
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, memerr.Wrap(memerr.KindStorage, err, "scan tag").WithBackend("durable")
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

const episodeSelectCols = `SELECT
	id, description, task_type, start_time, end_time, is_complete,
	context_blob, steps_blob, outcome_blob, reward_blob, reflection_blob,
	salient_blob, pattern_ids_blob, applied_ids_blob, heuristic_ids_blob, metadata_blob`

// rowScanner abstracts *sql.Row and *sql.Rows for scanEpisode.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEpisode(row rowScanner) (*model.Episode, error) {
	var (
		idStr, description, taskType, startTime string
		endTime                                 sql.NullString
		isComplete                               int
		contextBlob, stepsBlob                   []byte
		outcomeBlob, rewardBlob, reflectionBlob   []byte
		salientBlob, patternIDsBlob, appliedIDsBlob []byte
		heuristicIDsBlob, metadataBlob           []byte
	)
	if err := row.Scan(&idStr, &description, &taskType, &startTime, &endTime, &isComplete,
		&contextBlob, &stepsBlob, &outcomeBlob, &rewardBlob, &reflectionBlob,
		&salientBlob, &patternIDsBlob, &appliedIDsBlob, &heuristicIDsBlob, &metadataBlob); err != nil {
		if err == sql.ErrNoRows {
			return nil, memerr.NotFound("episode", "")
		}
		return nil, memerr.Wrap(memerr.KindStorage, err, "scan episode").WithBackend("durable")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindSerialization, err, "parse episode id").WithBackend("durable")
	}
	start, err := time.Parse(time.RFC3339Nano, startTime)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindSerialization, err, "parse start_time").WithBackend("durable")
	}

	ep := &model.Episode{
		ID:          id,
		Description: description,
		TaskType:    model.TaskType(taskType),
		StartTime:   start,
	}
	if endTime.Valid && endTime.String != "" {
		t, err := time.Parse(time.RFC3339Nano, endTime.String)
		if err != nil {
			return nil, memerr.Wrap(memerr.KindSerialization, err, "parse end_time").WithBackend("durable")
		}
		ep.EndTime = &t
	}

	if err := s.unmarshalCompressed(contextBlob, &ep.Context); err != nil {
		return nil, err
	}
	if err := s.unmarshalCompressed(stepsBlob, &ep.Steps); err != nil {
		return nil, err
	}
	if len(outcomeBlob) > 0 {
		var outcome model.TaskOutcome
		if err := json.Unmarshal(outcomeBlob, &outcome); err != nil {
			return nil, memerr.Wrap(memerr.KindSerialization, err, "unmarshal outcome").WithBackend("durable")
		}
		ep.Outcome = &outcome
	}
	if len(rewardBlob) > 0 {
		var reward model.RewardScore
		if err := json.Unmarshal(rewardBlob, &reward); err != nil {
			return nil, memerr.Wrap(memerr.KindSerialization, err, "unmarshal reward").WithBackend("durable")
		}
		ep.Reward = &reward
	}
	if len(reflectionBlob) > 0 {
		var reflection model.Reflection
		if err := json.Unmarshal(reflectionBlob, &reflection); err != nil {
			return nil, memerr.Wrap(memerr.KindSerialization, err, "unmarshal reflection").WithBackend("durable")
		}
		ep.Reflection = &reflection
	}
	if len(salientBlob) > 0 {
		var salient model.SalientFeatures
		if err := json.Unmarshal(salientBlob, &salient); err != nil {
			return nil, memerr.Wrap(memerr.KindSerialization, err, "unmarshal salient features").WithBackend("durable")
		}
		ep.SalientFeatures = &salient
	}
	if err := s.unmarshalCompressed(patternIDsBlob, &ep.ExtractedPatternIDs); err != nil {
		return nil, err
	}
	if err := s.unmarshalCompressed(appliedIDsBlob, &ep.AppliedPatternIDs); err != nil {
		return nil, err
	}
	if err := s.unmarshalCompressed(heuristicIDsBlob, &ep.ExtractedHeuristicIDs); err != nil {
		return nil, err
	}
	if err := s.unmarshalCompressed(metadataBlob, &ep.Metadata); err != nil {
		return nil, err
	}
	return ep, nil
}

func (s *Store) scanEpisodes(ctx context.Context, c *sql.Conn, rows *sql.Rows) ([]*model.Episode, error) {
	var eps []*model.Episode
	for rows.Next() {
		ep, err := s.scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		tags, err := s.getEpisodeTagsLocked(ctx, c, ep.ID)
		if err != nil {
			return nil, err
		}
		ep.SetTags(tags)
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

func (s *Store) marshalCompressed(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindSerialization, err, "marshal").WithBackend("durable")
	}
	return s.compress(data), nil
}

func (s *Store) unmarshalCompressed(blob []byte, dest any) error {
	if len(blob) == 0 {
		return nil
	}
	data, err := Decompress(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return memerr.Wrap(memerr.KindSerialization, err, "unmarshal").WithBackend("durable")
	}
	return nil
}

func (s *Store) marshalOptional(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindSerialization, err, "marshal").WithBackend("durable")
	}
	return data, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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
