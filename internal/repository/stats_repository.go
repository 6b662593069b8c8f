package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-session/internal/model"
)

// StatsDelta is an increment to apply to one exam's stats row.
type StatsDelta struct {
	ExamID   uuid.UUID
	Attempts int
	Passes   int
	Correct  int
}

// StatsRepository maintains per-exam aggregate stats.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// GetByExam returns the stats row for an exam.
func (r *StatsRepository) GetByExam(ctx context.Context, examID uuid.UUID) (*model.ExamStats, error) {
	s := &model.ExamStats{}
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, attempts, passes, total_correct, updated_at
		 FROM exam_stats WHERE exam_id = $1`, examID,
	).Scan(&s.ExamID, &s.Attempts, &s.Passes, &s.TotalCorrect, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BulkApply upserts a batch of deltas in one statement using UNNEST. Exam ids
// must be distinct within a batch.
func (r *StatsRepository) BulkApply(ctx context.Context, deltas []StatsDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	examIDs := make([]uuid.UUID, len(deltas))
	attempts := make([]int, len(deltas))
	passes := make([]int, len(deltas))
	correct := make([]int, len(deltas))
	for i, d := range deltas {
		examIDs[i] = d.ExamID
		attempts[i] = d.Attempts
		passes[i] = d.Passes
		correct[i] = d.Correct
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO exam_stats AS s (exam_id, attempts, passes, total_correct, updated_at)
		SELECT u.exam_id, u.attempts, u.passes, u.correct, NOW()
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::int[],
			$4::int[]
		) AS u (exam_id, attempts, passes, correct)
		ON CONFLICT (exam_id) DO UPDATE
		SET attempts      = s.attempts + EXCLUDED.attempts,
		    passes        = s.passes + EXCLUDED.passes,
		    total_correct = s.total_correct + EXCLUDED.total_correct,
		    updated_at    = NOW()`,
		examIDs, attempts, passes, correct)
	return err
}

// Apply upserts a single delta. Used when a batch fails.
func (r *StatsRepository) Apply(ctx context.Context, d StatsDelta) error {
	return r.BulkApply(ctx, []StatsDelta{d})
}
