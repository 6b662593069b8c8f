package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stemsi/exstem-session/internal/grading"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
)

// finalizeJob is the graded attempt captured when the finalize gate closes.
type finalizeJob struct {
	result  model.Result
	trigger Trigger
}

// beginFinalizeLocked closes the finalize gate and stops the clock. Exactly one
// of Submit and timer expiry gets past the gate per attempt. A job left over
// from a failed report write is reused so the graded answers never change.
func (s *Session) beginFinalizeLocked(trigger Trigger) finalizeJob {
	s.finalizing = true
	s.finalizeDone = make(chan struct{})
	s.countdown.Stop()
	s.timerGen = 0

	if s.pending != nil {
		return *s.pending
	}
	return finalizeJob{
		result:  grading.Grade(s.exam.Questions, s.attempt.SelectedOptions, s.exam.PassingMarks),
		trigger: trigger,
	}
}

// endFinalizeLocked reopens the gate and wakes callers waiting on it.
func (s *Session) endFinalizeLocked() {
	s.finalizing = false
	if s.finalizeDone != nil {
		close(s.finalizeDone)
		s.finalizeDone = nil
	}
}

// Submit grades the attempt and records the report. If the report cannot be
// stored the session stays in questions with the timer stopped and the graded
// answers frozen; Submit may be retried and re-sends the same result. If the
// report is stored but the snapshot cannot be cleared, the outcome is returned
// together with an ErrPersistenceWriteFailed error. A Submit that arrives while
// another finalize is running waits for it and returns its outcome.
func (s *Session) Submit(ctx context.Context) (*Outcome, error) {
	s.mu.Lock()
	if err := s.guardLocked("submit", PhaseQuestions); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.finalizing {
		done := s.finalizeDone
		s.mu.Unlock()
		return s.awaitFinalize(ctx, done)
	}
	job := s.beginFinalizeLocked(TriggerSubmit)
	s.mu.Unlock()

	// A dropped client must not abort report storage halfway.
	return s.finalize(context.WithoutCancel(ctx), job)
}

func (s *Session) awaitFinalize(ctx context.Context, done <-chan struct{}) (*Outcome, error) {
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != nil {
		return s.outcome, nil
	}
	return nil, s.fail("submit", ErrReportSubmissionFailed)
}

func (s *Session) finalize(ctx context.Context, job finalizeJob) (*Outcome, error) {
	op := string(job.trigger)
	result := job.result

	report, err := s.submitReport(ctx, result)
	if err != nil {
		s.mu.Lock()
		s.pending = &job
		s.endFinalizeLocked()
		s.mu.Unlock()

		metrics.FinalizeFailures.WithLabelValues(op).Inc()
		s.log.Error().Err(err).Str("trigger", op).Msg("Failed to submit report; attempt frozen until retry")
		s.publish(Event{Type: EventError, Phase: PhaseQuestions, Trigger: job.trigger, Error: ErrReportSubmissionFailed.Error()})
		return nil, &Error{Op: op, Phase: PhaseQuestions, Err: fmt.Errorf("%w: %w", ErrReportSubmissionFailed, err)}
	}

	clearErr := s.clearSnapshot(ctx)

	outcome := &Outcome{Result: result, Report: report, Trigger: job.trigger}

	s.mu.Lock()
	s.stopAutosaveLocked()
	s.attempt = nil
	s.pending = nil
	s.outcome = outcome
	s.setPhaseLocked(PhaseResult)
	s.endFinalizeLocked()
	s.mu.Unlock()

	metrics.Finalizations.WithLabelValues(op, string(result.Verdict)).Inc()
	s.log.Info().
		Str("trigger", op).
		Str("verdict", string(result.Verdict)).
		Int("correct", result.CorrectCount()).
		Int("wrong", result.WrongCount()).
		Msg("Attempt finalized")
	s.publish(Event{Type: EventFinalized, Phase: PhaseResult, Trigger: job.trigger, Verdict: result.Verdict})

	if clearErr != nil {
		s.log.Error().Err(clearErr).Msg("Report stored but snapshot could not be cleared")
		return outcome, &Error{Op: op, Phase: PhaseResult, Err: persistenceErr(clearErr)}
	}
	return outcome, nil
}

func (s *Session) submitReport(ctx context.Context, result model.Result) (*model.Report, error) {
	var report *model.Report
	attempt := 0

	err := backoff.RetryNotify(func() error {
		attempt++
		if attempt > 1 {
			metrics.ReportRetries.Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, s.opts.ReportCallTimeout)
		defer cancel()

		r, err := s.reports.SubmitReport(callCtx, s.exam.ID, s.userID, result)
		if err != nil {
			return err
		}
		report = r
		return nil
	}, s.newBackoff(ctx), func(err error, wait time.Duration) {
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Report submission failed; retrying")
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
