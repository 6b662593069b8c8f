package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-session/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, name, duration_seconds, total_marks, passing_marks,
	access_code_hash, is_paid, status, created_at, updated_at`

func scanExam(row interface{ Scan(dest ...any) error }, e *model.ExamDefinition) error {
	return row.Scan(&e.ID, &e.Name, &e.DurationSeconds, &e.TotalMarks, &e.PassingMarks,
		&e.AccessCodeHash, &e.IsPaid, &e.Status, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID, without questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	e := &model.ExamDefinition{}
	err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.ExamDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = $1 ORDER BY created_at DESC`,
		model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.ExamDefinition
	for rows.Next() {
		var e model.ExamDefinition
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.ExamDefinition) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (name, duration_seconds, total_marks, passing_marks, access_code_hash, is_paid, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		e.Name, e.DurationSeconds, e.TotalMarks, e.PassingMarks, e.AccessCodeHash, e.IsPaid, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// UpdateAccessCodeHash replaces an exam's access code hash. Returns false if
// no exam has the given id.
func (r *ExamRepository) UpdateAccessCodeHash(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET access_code_hash = $1, updated_at = NOW() WHERE id = $2`,
		hash, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
