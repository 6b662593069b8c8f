package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

const statsCacheTTL = 30 * time.Second

// StatsReader reads the aggregated stats row of an exam.
type StatsReader interface {
	GetByExam(ctx context.Context, examID uuid.UUID) (*model.ExamStats, error)
}

// StatsService serves per-exam aggregates to administrators.
type StatsService struct {
	repo StatsReader
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewStatsService creates a new StatsService.
func NewStatsService(repo StatsReader, rdb *redis.Client, log zerolog.Logger) *StatsService {
	return &StatsService{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "stats_service").Logger(),
	}
}

// GetStats returns the stats of an exam. An exam with no finalized attempts
// yields a zero row.
func (s *StatsService) GetStats(ctx context.Context, examID uuid.UUID) (*model.ExamStats, error) {
	key := config.CacheKey.ExamStatsKey(examID)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var st model.ExamStats
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.repo.GetByExam(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.ExamStats{ExamID: examID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	if raw, err := json.Marshal(st); err == nil {
		if err := s.rdb.Set(ctx, key, raw, statsCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache exam stats")
		}
	}
	return st, nil
}
