package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
)

const StatsPollTimeout = 1 * time.Second

// StatsApplier writes aggregated stat increments.
type StatsApplier interface {
	BulkApply(ctx context.Context, deltas []repository.StatsDelta) error
	Apply(ctx context.Context, d repository.StatsDelta) error
}

// StatsWorker drains report events from Redis and folds them into exam_stats.
type StatsWorker struct {
	repo          StatsApplier
	rdb           *redis.Client
	batchSize     int
	flushInterval time.Duration
	log           zerolog.Logger
}

func NewStatsWorker(repo StatsApplier, rdb *redis.Client, batchSize int, flushInterval time.Duration, log zerolog.Logger) *StatsWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &StatsWorker{
		repo:          repo,
		rdb:           rdb,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           log.With().Str("component", "stats_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *StatsWorker) Start(ctx context.Context) {
	w.log.Info().Msg("StatsWorker started")

	batch := make([]model.ReportEvent, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.flushInterval) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, StatsPollTimeout, config.WorkerKey.ReportEventsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var ev model.ReportEvent
			if err := json.Unmarshal([]byte(item[1]), &ev); err != nil {
				w.log.Error().Err(err).Msg("Invalid report event payload")
				continue
			}
			batch = append(batch, ev)
		}
	}
}

// ----------------------------------------------------------------
// Batch aggregation and upsert
// ----------------------------------------------------------------

// Aggregate collapses events into one delta per exam, in first-seen order.
func Aggregate(events []model.ReportEvent) []repository.StatsDelta {
	index := make(map[uuid.UUID]int)
	var deltas []repository.StatsDelta
	for _, ev := range events {
		i, ok := index[ev.ExamID]
		if !ok {
			i = len(deltas)
			index[ev.ExamID] = i
			deltas = append(deltas, repository.StatsDelta{ExamID: ev.ExamID})
		}
		deltas[i].Attempts++
		deltas[i].Correct += ev.Correct
		if ev.Passed {
			deltas[i].Passes++
		}
	}
	return deltas
}

func (w *StatsWorker) flushSafe(ctx context.Context, batch []model.ReportEvent) {
	if len(batch) == 0 {
		return
	}

	deltas := Aggregate(batch)
	if err := w.repo.BulkApply(ctx, deltas); err != nil {
		w.log.Warn().Err(err).Msg("bulk stats update failed, using fallback")
		w.fallback(ctx, batch)
		return
	}

	metrics.StatsEventsProcessed.Add(float64(len(batch)))
	w.invalidate(ctx, deltas)
}

// fallback applies each exam's delta on its own and requeues the events of
// exams that still fail.
func (w *StatsWorker) fallback(ctx context.Context, batch []model.ReportEvent) {
	var applied []repository.StatsDelta
	for _, d := range Aggregate(batch) {
		if err := w.repo.Apply(ctx, d); err != nil {
			w.log.Error().Err(err).Str("exam_id", d.ExamID.String()).Msg("stats apply failed; requeueing")
			w.requeue(ctx, batch, d.ExamID)
			continue
		}
		applied = append(applied, d)
	}
	w.invalidate(ctx, applied)
}

func (w *StatsWorker) requeue(ctx context.Context, batch []model.ReportEvent, examID uuid.UUID) {
	for _, ev := range batch {
		if ev.ExamID != examID {
			continue
		}
		raw, _ := json.Marshal(ev)
		w.rdb.RPush(ctx, config.WorkerKey.ReportEventsQueue, raw)
	}
}

// invalidate drops cached stats of the touched exams in one pipeline.
func (w *StatsWorker) invalidate(ctx context.Context, deltas []repository.StatsDelta) {
	if len(deltas) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, d := range deltas {
		pipe.Del(ctx, config.CacheKey.ExamStatsKey(d.ExamID))
	}
	_, _ = pipe.Exec(ctx)
}
