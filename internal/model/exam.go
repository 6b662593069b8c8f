package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam definition validation errors.
var (
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrInvalidDuration  = errors.New("exam duration must be positive")
	ErrInvalidPassMarks = errors.New("passing marks must not be negative")
)

// ExamDefinition is the immutable exam copy a session holds for the lifetime of an attempt.
type ExamDefinition struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	DurationSeconds int        `json:"duration_seconds"`
	TotalMarks      int        `json:"total_marks"`
	PassingMarks    int        `json:"passing_marks"`
	AccessCodeHash  string     `json:"-"`
	IsPaid          bool       `json:"is_paid"`
	Status          ExamStatus `json:"status"`
	Questions       []Question `json:"questions"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// cachedExam mirrors ExamDefinition for the Redis cache, which must keep the access code hash.
type cachedExam struct {
	ExamDefinition
	AccessCodeHash string `json:"access_code_hash"`
}

// QuestionCount returns the number of questions in the exam.
func (e *ExamDefinition) QuestionCount() int {
	return len(e.Questions)
}

// Validate checks the invariants a session relies on.
func (e *ExamDefinition) Validate() error {
	if len(e.Questions) == 0 {
		return ErrNoQuestions
	}
	if e.DurationSeconds <= 0 {
		return ErrInvalidDuration
	}
	if e.PassingMarks < 0 {
		return ErrInvalidPassMarks
	}
	for i := range e.Questions {
		if err := e.Questions[i].Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// MarshalCache encodes the exam for the Redis cache, keeping the access code hash.
func (e *ExamDefinition) MarshalCache() ([]byte, error) {
	return json.Marshal(cachedExam{ExamDefinition: *e, AccessCodeHash: e.AccessCodeHash})
}

// UnmarshalCachedExam restores an exam previously encoded with MarshalCache.
func UnmarshalCachedExam(data []byte) (*ExamDefinition, error) {
	var c cachedExam
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	exam := c.ExamDefinition
	exam.AccessCodeHash = c.AccessCodeHash
	return &exam, nil
}

// ExamPayload is what a student sees of the exam: no correct answers, no access code.
type ExamPayload struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Name            string               `json:"name"`
	DurationSeconds int                  `json:"duration_seconds"`
	TotalMarks      int                  `json:"total_marks"`
	PassingMarks    int                  `json:"passing_marks"`
	Questions       []QuestionForStudent `json:"questions"`
}

// Payload builds the student-facing view of the exam.
func (e *ExamDefinition) Payload() ExamPayload {
	questions := make([]QuestionForStudent, len(e.Questions))
	for i, q := range e.Questions {
		questions[i] = QuestionForStudent{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Options: q.Options,
		}
	}
	return ExamPayload{
		ExamID:          e.ID,
		Name:            e.Name,
		DurationSeconds: e.DurationSeconds,
		TotalMarks:      e.TotalMarks,
		PassingMarks:    e.PassingMarks,
		Questions:       questions,
	}
}
