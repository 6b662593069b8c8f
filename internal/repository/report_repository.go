package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-session/internal/model"
)

// ReportRepository stores finalized attempt reports.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Create inserts a report and fills its id and creation time.
func (r *ReportRepository) Create(ctx context.Context, rep *model.Report) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO reports (exam_id, user_id, verdict, correct_count, wrong_count, score, result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		rep.ExamID, rep.UserID, rep.Result.Verdict,
		rep.Result.CorrectCount(), rep.Result.WrongCount(), rep.Score, rep.Result,
	).Scan(&rep.ID, &rep.CreatedAt)
}

// GetByID retrieves a report by its UUID.
func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	rep := &model.Report{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, user_id, score, result, created_at
		 FROM reports WHERE id = $1`, id,
	).Scan(&rep.ID, &rep.ExamID, &rep.UserID, &rep.Score, &rep.Result, &rep.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// CountByExamAndUser returns how many reports a user has for an exam.
func (r *ReportRepository) CountByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE exam_id = $1 AND user_id = $2`,
		examID, userID,
	).Scan(&n)
	return n, err
}
