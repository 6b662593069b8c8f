package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/model"
)

// Access errors, checked before a session is opened.
var (
	ErrNotRegistered      = errors.New("user is not registered for this exam")
	ErrAccessCodeInactive = errors.New("access code is not active for this registration")
	ErrPaymentRequired    = errors.New("payment required for this exam")
)

// AccessReader reads registration state.
type AccessReader interface {
	GetStatus(ctx context.Context, examID uuid.UUID, userID int) (model.AccessStatus, error)
}

// AccessService answers whether a user may take an exam.
type AccessService struct {
	repo AccessReader
}

// NewAccessService creates a new AccessService.
func NewAccessService(repo AccessReader) *AccessService {
	return &AccessService{repo: repo}
}

// CheckAccess returns the raw access status of a user for an exam.
func (s *AccessService) CheckAccess(ctx context.Context, examID uuid.UUID, userID int) (model.AccessStatus, error) {
	st, err := s.repo.GetStatus(ctx, examID, userID)
	if err != nil {
		return model.AccessStatus{}, fmt.Errorf("check access: %w", err)
	}
	return st, nil
}

// Authorize turns an access status into a decision for a specific exam.
func Authorize(exam *model.ExamDefinition, st model.AccessStatus) error {
	if !st.IsRegistered {
		return ErrNotRegistered
	}
	if !st.AccessCodeValid {
		return ErrAccessCodeInactive
	}
	if exam.IsPaid && st.PaymentStatus != model.PaymentCompleted {
		return ErrPaymentRequired
	}
	return nil
}
