package session

import (
	"context"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// maxClockSkew tolerates snapshots stamped slightly in the future by another node.
const maxClockSkew = time.Minute

// Restore rebuilds an attempt from a snapshot, keeping only entries that are
// valid for exam. SecondsRemaining is honored only when it is non-negative and
// strictly less than the full duration; otherwise the full duration is used.
func Restore(exam *model.ExamDefinition, snap model.Snapshot) *model.AttemptState {
	n := exam.QuestionCount()
	a := model.NewAttemptState(exam.DurationSeconds)

	for idx, key := range snap.SelectedOptions {
		if idx < 0 || idx >= n || !exam.Questions[idx].HasOption(key) {
			continue
		}
		a.SelectedOptions[idx] = key
	}
	for _, idx := range snap.MarkedForReview {
		if idx >= 0 && idx < n {
			a.MarkedForReview[idx] = true
		}
	}
	if snap.CurrentIndex >= 0 && snap.CurrentIndex < n {
		a.CurrentIndex = snap.CurrentIndex
	}
	if snap.SecondsRemaining >= 0 && snap.SecondsRemaining < exam.DurationSeconds {
		a.SecondsRemaining = snap.SecondsRemaining
	}
	return a
}

// loadOfferLocked reads the stored snapshot and returns it if it is inside the
// recovery window. Expired snapshots are cleared best-effort.
func (s *Session) loadOfferLocked(ctx context.Context) *model.Snapshot {
	snap, found, err := s.store.Load(ctx, s.exam.ID, s.userID)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load snapshot; continuing without recovery")
		return nil
	}
	if !found {
		return nil
	}

	age := s.opts.Now().Sub(snap.SavedAt())
	if age > s.opts.RecoveryWindow || age < -maxClockSkew {
		s.log.Info().Dur("age", age).Msg("Discarding snapshot outside recovery window")
		if err := s.store.Clear(ctx, s.exam.ID, s.userID); err != nil {
			s.log.Warn().Err(err).Msg("Failed to clear expired snapshot")
		}
		return nil
	}
	return &snap
}
