package model

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the pass/fail outcome of a graded attempt.
type Verdict string

const (
	VerdictPass Verdict = "Pass"
	VerdictFail Verdict = "Fail"
)

// Result is the graded outcome of one attempt. Immutable once produced.
type Result struct {
	CorrectAnswers []Question `json:"correct_answers"`
	WrongAnswers   []Question `json:"wrong_answers"`
	Verdict        Verdict    `json:"verdict"`
}

// CorrectCount returns the number of correctly answered questions.
func (r *Result) CorrectCount() int { return len(r.CorrectAnswers) }

// WrongCount returns the number of wrong or unanswered questions.
func (r *Result) WrongCount() int { return len(r.WrongAnswers) }

// Report is the persisted record of a finalized attempt.
type Report struct {
	ID        uuid.UUID `json:"id"`
	ExamID    uuid.UUID `json:"exam_id"`
	UserID    int       `json:"user_id"`
	Result    Result    `json:"result"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportEvent is queued to Redis after a report is stored, for the stats worker.
type ReportEvent struct {
	ReportID uuid.UUID `json:"report_id"`
	ExamID   uuid.UUID `json:"exam_id"`
	UserID   int       `json:"user_id"`
	Correct  int       `json:"correct"`
	Passed   bool      `json:"passed"`
}

// ExamStats aggregates finalized attempts for one exam.
type ExamStats struct {
	ExamID       uuid.UUID `json:"exam_id"`
	Attempts     int       `json:"attempts"`
	Passes       int       `json:"passes"`
	TotalCorrect int       `json:"total_correct"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PassRate returns passes/attempts, or 0 when there are no attempts.
func (s *ExamStats) PassRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Passes) / float64(s.Attempts)
}
