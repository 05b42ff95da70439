package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
)

// SaveRun prepends rec to the history of its source file and trims it to
// limit entries. limit <= 0 keeps everything.
func (s *Store) SaveRun(ctx context.Context, rec domain.RunRecord, limit int) error {
	if rec.SourcePath == "" {
		return errors.New("run record has no source path")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	key := RunsKey(rec.SourcePath)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	if limit > 0 {
		pipe.LTrim(ctx, key, 0, int64(limit-1))
	}
	pipe.Expire(ctx, key, DefaultRunTTL)
	pipe.SAdd(ctx, KeyRunPaths, rec.SourcePath)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

// ListRuns returns up to limit records for the service file at sourcePath,
// newest first
func (s *Store) ListRuns(ctx context.Context, sourcePath string, limit int) ([]domain.RunRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	raw, err := s.client.LRange(ctx, RunsKey(sourcePath), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	records := make([]domain.RunRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.RunRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			// Skip entries written by an incompatible version
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListAllRuns merges the histories of every service file, newest first
func (s *Store) ListAllRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	return s.listMerged(ctx, limit, func(domain.RunRecord) bool { return true })
}

// ListRunsByName merges the histories of every file whose service carried
// name when it ran, including files that have since been removed.
func (s *Store) ListRunsByName(ctx context.Context, name string, limit int) ([]domain.RunRecord, error) {
	return s.listMerged(ctx, limit, func(rec domain.RunRecord) bool { return rec.Service == name })
}

func (s *Store) listMerged(ctx context.Context, limit int, keep func(domain.RunRecord) bool) ([]domain.RunRecord, error) {
	paths, err := s.client.SMembers(ctx, KeyRunPaths).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list run history index: %w", err)
	}

	var all []domain.RunRecord
	for _, path := range paths {
		records, err := s.ListRuns(ctx, path, 0)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if keep(rec) {
				all = append(all, rec)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
