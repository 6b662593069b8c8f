package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/grading"
	"github.com/stemsi/exstem-session/internal/model"
)

// View is a read-only projection of a session for transports.
type View struct {
	ExamID     uuid.UUID                  `json:"exam_id"`
	UserID     int                        `json:"user_id"`
	Phase      Phase                      `json:"phase"`
	Exam       ExamInfo                   `json:"exam"`
	Questions  []model.QuestionForStudent `json:"questions,omitempty"`
	Attempt    *model.AttemptState        `json:"attempt,omitempty"`
	Recovery   *RecoveryOffer             `json:"recovery,omitempty"`
	Outcome    *OutcomeView               `json:"outcome,omitempty"`
	Finalizing bool                       `json:"finalizing"`
}

// ExamInfo is what a user sees of an exam before the attempt starts.
type ExamInfo struct {
	Name            string `json:"name"`
	DurationSeconds int    `json:"duration_seconds"`
	QuestionCount   int    `json:"question_count"`
	TotalMarks      int    `json:"total_marks"`
	PassingMarks    int    `json:"passing_marks"`
	IsPaid          bool   `json:"is_paid"`
}

// RecoveryOffer describes a snapshot the user may resume from.
type RecoveryOffer struct {
	SavedAt          time.Time `json:"saved_at"`
	SecondsRemaining int       `json:"seconds_remaining"`
	Answered         int       `json:"answered"`
	MarkedForReview  int       `json:"marked_for_review"`
}

// OutcomeView summarises a finalized attempt. The per-question lists are only
// filled in the review phase.
type OutcomeView struct {
	ReportID       uuid.UUID        `json:"report_id"`
	Trigger        Trigger          `json:"trigger"`
	Verdict        model.Verdict    `json:"verdict"`
	Correct        int              `json:"correct"`
	Wrong          int              `json:"wrong"`
	Score          float64          `json:"score"`
	CorrectAnswers []model.Question `json:"correct_answers,omitempty"`
	WrongAnswers   []model.Question `json:"wrong_answers,omitempty"`
}

// View returns a consistent snapshot of the session state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ExamID: s.exam.ID,
		UserID: s.userID,
		Phase:  s.phase,
		Exam: ExamInfo{
			Name:            s.exam.Name,
			DurationSeconds: s.exam.DurationSeconds,
			QuestionCount:   s.exam.QuestionCount(),
			TotalMarks:      s.exam.TotalMarks,
			PassingMarks:    s.exam.PassingMarks,
			IsPaid:          s.exam.IsPaid,
		},
		Finalizing: s.finalizing || s.pending != nil,
	}

	switch s.phase {
	case PhaseInstructions:
		if s.offer != nil {
			restored := Restore(s.exam, *s.offer)
			v.Recovery = &RecoveryOffer{
				SavedAt:          s.offer.SavedAt(),
				SecondsRemaining: restored.SecondsRemaining,
				Answered:         len(restored.SelectedOptions),
				MarkedForReview:  len(restored.MarkedForReview),
			}
		}
	case PhaseQuestions:
		v.Questions = s.exam.Payload().Questions
		v.Attempt = s.attempt.Clone()
	case PhaseResult, PhaseReview:
		v.Outcome = s.outcomeViewLocked(s.phase == PhaseReview)
	}
	return v
}

func (s *Session) outcomeViewLocked(detailed bool) *OutcomeView {
	o := s.outcome
	ov := &OutcomeView{
		Trigger: o.Trigger,
		Verdict: o.Result.Verdict,
		Correct: o.Result.CorrectCount(),
		Wrong:   o.Result.WrongCount(),
		Score:   grading.Score(o.Result, s.exam.TotalMarks),
	}
	if o.Report != nil {
		ov.ReportID = o.Report.ID
	}
	if detailed {
		ov.CorrectAnswers = o.Result.CorrectAnswers
		ov.WrongAnswers = o.Result.WrongAnswers
	}
	return ov
}
