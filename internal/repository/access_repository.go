package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-session/internal/model"
)

// AccessRepository reads exam registrations and their payment state.
type AccessRepository struct {
	pool *pgxpool.Pool
}

// NewAccessRepository creates a new AccessRepository.
func NewAccessRepository(pool *pgxpool.Pool) *AccessRepository {
	return &AccessRepository{pool: pool}
}

// GetStatus returns the access status of a user for an exam. A missing
// registration is reported as not registered, not as an error.
func (r *AccessRepository) GetStatus(ctx context.Context, examID uuid.UUID, userID int) (model.AccessStatus, error) {
	st := model.AccessStatus{IsRegistered: true}
	err := r.pool.QueryRow(ctx,
		`SELECT access_code_active, payment_status
		 FROM exam_registrations
		 WHERE exam_id = $1 AND user_id = $2`, examID, userID,
	).Scan(&st.AccessCodeValid, &st.PaymentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccessStatus{PaymentStatus: model.PaymentNotRequired}, nil
	}
	if err != nil {
		return model.AccessStatus{}, err
	}
	return st, nil
}

// Register creates or updates a registration.
func (r *AccessRepository) Register(ctx context.Context, examID uuid.UUID, userID int, payment model.PaymentStatus) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_registrations (exam_id, user_id, payment_status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, user_id) DO UPDATE SET payment_status = EXCLUDED.payment_status`,
		examID, userID, payment)
	return err
}
