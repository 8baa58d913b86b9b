package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// StoreEpisodesBatch persists every episode inside a single transaction:
// either all commit or none do.
func (s *Store) StoreEpisodesBatch(ctx context.Context, eps []*model.Episode) error {
	for _, ep := range eps {
		if err := ep.Validate(); err != nil {
			return err
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, ep := range eps {
			if err := s.insertEpisodeTx(ctx, tx, ep); err != nil {
				return err
			}
		}
		return nil
	})
}

// StorePatternsBatch persists every pattern inside a single transaction.
func (s *Store) StorePatternsBatch(ctx context.Context, pats []*model.Pattern) error {
	for _, p := range pats {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, p := range pats {
			payload, err := json.Marshal(p)
			if err != nil {
				return memerr.Wrap(memerr.KindSerialization, err, "marshal pattern %s", p.ID).WithBackend("durable")
			}
			_, err = tx.ExecContext(ctx, `
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
				return memerr.Wrap(memerr.KindStorage, err, "batch store pattern %s", p.ID).WithBackend("durable")
			}
		}
		return nil
	})
}

func (s *Store) insertEpisodeTx(ctx context.Context, tx *sql.Tx, ep *model.Episode) error {
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

	_, err = tx.ExecContext(ctx, `
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
		return memerr.Wrap(memerr.KindStorage, err, "batch store episode %s", ep.ID).WithBackend("durable")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM episode_tags WHERE episode_id = ?", ep.ID.String()); err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "batch clear episode tags %s", ep.ID).WithBackend("durable")
	}
	for _, tag := range ep.GetTags() {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO episode_tags (episode_id, tag) VALUES (?, ?)", ep.ID.String(), tag); err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "batch insert episode tag %s", tag).WithBackend("durable")
		}
	}
	return nil
}
