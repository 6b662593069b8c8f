package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
)

// errFenced means the attempt that produced a snapshot may no longer write.
var errFenced = errors.New("snapshot write fenced")

func persistenceErr(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistenceWriteFailed, err)
}

func (s *Session) startAutosaveLocked(epoch uint64) {
	s.stopAutosaveLocked()
	stop := make(chan struct{})
	s.autosaveStop = stop
	go s.autosaveLoop(epoch, stop)
}

func (s *Session) stopAutosaveLocked() {
	if s.autosaveStop != nil {
		close(s.autosaveStop)
		s.autosaveStop = nil
	}
}

func (s *Session) autosaveLoop(epoch uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.autosave(epoch)
		}
	}
}

// autosave persists the live attempt. Failures are logged and counted, never
// surfaced to the user.
func (s *Session) autosave(epoch uint64) {
	s.mu.Lock()
	if s.closed || s.phase != PhaseQuestions || s.finalizing || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	snap := model.SnapshotOf(s.attempt, s.opts.Now())
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.FlushTimeout)
	defer cancel()

	err := s.saveSnapshot(ctx, epoch, snap, false)
	switch {
	case err == nil:
		s.log.Debug().Int("seconds_remaining", snap.SecondsRemaining).Msg("Autosaved attempt")
	case errors.Is(err, errFenced):
	default:
		metrics.AutosaveFailures.Inc()
		s.log.Warn().Err(err).Msg("Autosave failed")
	}
}

// saveSnapshot writes snap if epoch still owns the store. With fence set, a
// successful write also closes the store to every later writer of this attempt.
func (s *Session) saveSnapshot(ctx context.Context, epoch uint64, snap model.Snapshot, fence bool) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.writableEpoch != epoch || epoch == 0 {
		return errFenced
	}
	if err := s.store.Save(ctx, s.exam.ID, s.userID, snap); err != nil {
		return err
	}
	if fence {
		s.writableEpoch = 0
	}
	return nil
}

// clearSnapshot fences out every writer, waits for an in-flight save and then
// removes the stored snapshot, retrying with the report backoff policy.
func (s *Session) clearSnapshot(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.writableEpoch = 0
	return backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.FlushTimeout)
		defer cancel()
		return s.store.Clear(callCtx, s.exam.ID, s.userID)
	}, s.newBackoff(ctx))
}

// newBackoff builds the bounded exponential policy shared by report and clear retries.
func (s *Session) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.ReportBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.ReportAttempts-1)), ctx)
}
