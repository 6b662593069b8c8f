// Package session implements the exam-taking state machine: access check,
// instruction acknowledgment, the timed question flow, autosave and recovery,
// grading and report recording.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/snapshot"
	"github.com/stemsi/exstem-session/internal/timer"
)

// ReportSubmitter stores the graded outcome of an attempt.
type ReportSubmitter interface {
	SubmitReport(ctx context.Context, examID uuid.UUID, userID int, result model.Result) (*model.Report, error)
}

// Options tunes timing and retry behavior of a session.
type Options struct {
	TickInterval      time.Duration
	AutosaveInterval  time.Duration
	RecoveryWindow    time.Duration
	ReportAttempts    int
	ReportBackoff     time.Duration
	ReportCallTimeout time.Duration
	FlushTimeout      time.Duration
	Now               func() time.Time
}

// OptionsFromConfig maps the engine section of the application config.
func OptionsFromConfig(c config.SessionConfig) Options {
	return Options{
		TickInterval:      c.TickInterval,
		AutosaveInterval:  c.AutosaveInterval,
		RecoveryWindow:    c.RecoveryWindow,
		ReportAttempts:    c.ReportAttempts,
		ReportBackoff:     c.ReportBackoff,
		ReportCallTimeout: c.ReportCallTimeout,
		FlushTimeout:      c.FlushTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := config.DefaultSessionConfig()
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = d.AutosaveInterval
	}
	if o.RecoveryWindow <= 0 {
		o.RecoveryWindow = d.RecoveryWindow
	}
	if o.ReportAttempts <= 0 {
		o.ReportAttempts = d.ReportAttempts
	}
	if o.ReportBackoff <= 0 {
		o.ReportBackoff = d.ReportBackoff
	}
	if o.ReportCallTimeout <= 0 {
		o.ReportCallTimeout = d.ReportCallTimeout
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = d.FlushTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Acknowledgment is the caller's answer on the instructions screen.
type Acknowledgment struct {
	Agreed bool
	// Resume restores the offered snapshot, if any, instead of starting fresh.
	Resume bool
}

// Outcome is the immutable product of a finalized attempt.
type Outcome struct {
	Result  model.Result
	Report  *model.Report
	Trigger Trigger
}

// Session drives one user through one exam. All methods are safe for
// concurrent use; every mutation is applied whole or not at all.
type Session struct {
	exam    *model.ExamDefinition
	userID  int
	store   snapshot.Store
	reports ReportSubmitter
	opts    Options
	log     zerolog.Logger

	countdown *timer.Countdown

	mu           sync.Mutex
	phase        Phase
	attempt      *model.AttemptState // questions only
	outcome      *Outcome            // result and review only
	offer        *model.Snapshot     // instructions only
	finalizing   bool
	finalizeDone chan struct{} // closed when the running finalize returns
	pending      *finalizeJob  // graded attempt whose report write failed
	closed       bool
	timerGen     uint64
	epoch        uint64
	autosaveStop chan struct{}

	// persistMu serialises snapshot writes. writableEpoch is the attempt
	// allowed to write; zero fences every writer out.
	persistMu     sync.Mutex
	writableEpoch uint64

	subsMu     sync.Mutex
	subs       map[int]chan Event
	nextSub    int
	subsClosed bool
}

// New creates a session in the auth phase. exam must already be validated.
func New(exam *model.ExamDefinition, userID int, store snapshot.Store, reports ReportSubmitter, opts Options, logger zerolog.Logger) *Session {
	s := &Session{
		exam:    exam,
		userID:  userID,
		store:   store,
		reports: reports,
		opts:    opts.withDefaults(),
		log: logger.With().
			Str("component", "exam_session").
			Str("exam_id", exam.ID.String()).
			Int("user_id", userID).
			Logger(),
		phase: PhaseAuth,
		subs:  make(map[int]chan Event),
	}
	s.countdown = timer.NewCountdown(s.opts.TickInterval, timer.Callbacks{
		OnTick:   s.onTick,
		OnExpire: s.onExpire,
	})
	return s
}

// ExamID returns the id of the exam this session runs.
func (s *Session) ExamID() uuid.UUID { return s.exam.ID }

// UserID returns the id of the user taking the exam.
func (s *Session) UserID() int { return s.userID }

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Active reports whether the attempt clock is running or a finalize is in flight.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.phase == PhaseQuestions && (s.timerGen != 0 || s.finalizing)
}

// ─── Guards ─────────────────────────────────────────────────────────────────

func (s *Session) fail(op string, err error) error {
	return &Error{Op: op, Phase: s.phase, Err: err}
}

func (s *Session) guardLocked(op string, allowed ...Phase) error {
	if s.closed {
		return s.fail(op, ErrSessionClosed)
	}
	for _, p := range allowed {
		if s.phase == p {
			return nil
		}
	}
	return s.fail(op, ErrInvalidPhaseTransition)
}

// guardAttemptLocked admits operations that mutate the live attempt.
func (s *Session) guardAttemptLocked(op string) error {
	if err := s.guardLocked(op, PhaseQuestions); err != nil {
		return err
	}
	if s.finalizing || s.pending != nil {
		return s.fail(op, ErrFinalizeInProgress)
	}
	return nil
}

func (s *Session) checkIndexLocked(op string, index int) error {
	if index < 0 || index >= s.exam.QuestionCount() {
		return s.fail(op, ErrIndexOutOfRange)
	}
	return nil
}

func (s *Session) setPhaseLocked(p Phase) {
	s.phase = p
	ev := Event{Type: EventPhase, Phase: p}
	if s.attempt != nil {
		ev.SecondsRemaining = s.attempt.SecondsRemaining
	}
	s.publish(ev)
}

// ─── Auth & instructions ────────────────────────────────────────────────────

// VerifyAccess checks the access code. On success the session moves to
// instructions and any recoverable snapshot is offered.
func (s *Session) VerifyAccess(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked("verify_access", PhaseAuth); err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.exam.AccessCodeHash), []byte(code)); err != nil {
		s.log.Info().Msg("Access code rejected")
		return s.fail("verify_access", ErrInvalidAccessCode)
	}

	s.enterInstructionsLocked(s.loadOfferLocked(ctx))
	return nil
}

// enterInstructionsLocked moves to instructions with offer as the recovery choice.
func (s *Session) enterInstructionsLocked(offer *model.Snapshot) {
	s.offer = offer
	s.setPhaseLocked(PhaseInstructions)
}

// AcknowledgeInstructions starts the timed attempt. Without Agreed it is a no-op
// returning ErrAcknowledgmentRequired.
func (s *Session) AcknowledgeInstructions(ack Acknowledgment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked("acknowledge_instructions", PhaseInstructions); err != nil {
		return err
	}
	if !ack.Agreed {
		return s.fail("acknowledge_instructions", ErrAcknowledgmentRequired)
	}

	attempt := model.NewAttemptState(s.exam.DurationSeconds)
	if ack.Resume && s.offer != nil {
		attempt = Restore(s.exam, *s.offer)
		s.log.Info().
			Int("seconds_remaining", attempt.SecondsRemaining).
			Int("answered", len(attempt.SelectedOptions)).
			Msg("Attempt restored from snapshot")
	}
	s.offer = nil
	s.beginAttemptLocked(attempt)
	return nil
}

func (s *Session) beginAttemptLocked(attempt *model.AttemptState) {
	s.attempt = attempt
	s.epoch++

	s.persistMu.Lock()
	s.writableEpoch = s.epoch
	s.persistMu.Unlock()

	s.setPhaseLocked(PhaseQuestions)
	s.timerGen = s.countdown.Start(attempt.SecondsRemaining)
	s.startAutosaveLocked(s.epoch)
}

// ─── Question flow ──────────────────────────────────────────────────────────

// SelectOption records key as the answer to question index. Last write wins.
func (s *Session) SelectOption(index int, key model.OptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "select_option"
	if err := s.guardAttemptLocked(op); err != nil {
		return err
	}
	if err := s.checkIndexLocked(op, index); err != nil {
		return err
	}
	if !s.exam.Questions[index].HasOption(key) {
		return s.fail(op, ErrInvalidOption)
	}
	s.attempt.SelectedOptions[index] = key
	return nil
}

// ToggleReview flips the review mark on question index.
func (s *Session) ToggleReview(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "toggle_review"
	if err := s.guardAttemptLocked(op); err != nil {
		return false, err
	}
	if err := s.checkIndexLocked(op, index); err != nil {
		return false, err
	}
	if s.attempt.MarkedForReview[index] {
		delete(s.attempt.MarkedForReview, index)
		return false, nil
	}
	s.attempt.MarkedForReview[index] = true
	return true, nil
}

// Navigate moves the cursor to question index.
func (s *Session) Navigate(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "navigate"
	if err := s.guardAttemptLocked(op); err != nil {
		return err
	}
	if err := s.checkIndexLocked(op, index); err != nil {
		return err
	}
	s.attempt.CurrentIndex = index
	return nil
}

// ─── Timer callbacks ────────────────────────────────────────────────────────

func (s *Session) onTick(t timer.Tick) {
	s.mu.Lock()
	if t.Generation != s.timerGen || s.phase != PhaseQuestions || s.finalizing {
		s.mu.Unlock()
		return
	}
	s.attempt.SecondsRemaining = t.Remaining
	s.publish(Event{Type: EventTick, Phase: PhaseQuestions, SecondsRemaining: t.Remaining})
	s.mu.Unlock()
}

func (s *Session) onExpire(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.phase != PhaseQuestions || s.finalizing || s.closed {
		s.mu.Unlock()
		return
	}
	s.attempt.SecondsRemaining = 0
	job := s.beginFinalizeLocked(TriggerExpiry)
	s.mu.Unlock()

	s.log.Info().Msg("Time expired; finalizing attempt")
	// Errors are logged and published inside finalize.
	_, _ = s.finalize(context.Background(), job)
}

// ─── Exit, review & retake ──────────────────────────────────────────────────

// Exit saves the attempt, stops the timer and returns to instructions with the
// saved snapshot offered for recovery. If the save fails nothing changes.
func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "exit"
	if err := s.guardAttemptLocked(op); err != nil {
		return err
	}

	snap := model.SnapshotOf(s.attempt, s.opts.Now())
	if err := s.saveSnapshot(ctx, s.epoch, snap, true); err != nil {
		s.log.Error().Err(err).Msg("Failed to save snapshot on exit")
		return s.fail(op, persistenceErr(err))
	}

	s.countdown.Stop()
	s.timerGen = 0
	s.stopAutosaveLocked()
	s.attempt = nil
	s.enterInstructionsLocked(&snap)
	s.log.Info().Msg("Attempt exited; snapshot saved")
	return nil
}

// Review moves from the result summary to the per-question review.
func (s *Session) Review() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked("review", PhaseResult); err != nil {
		return err
	}
	s.setPhaseLocked(PhaseReview)
	return nil
}

// Retake discards the outcome and returns to instructions for a fresh attempt.
// No recovery is offered: whatever is still stored belongs to the graded
// attempt and is cleared best-effort.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked("retake", PhaseResult, PhaseReview); err != nil {
		return err
	}

	clearCtx, cancel := context.WithTimeout(ctx, s.opts.FlushTimeout)
	defer cancel()
	if err := s.store.Clear(clearCtx, s.exam.ID, s.userID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear graded attempt snapshot on retake")
	}

	s.outcome = nil
	s.enterInstructionsLocked(nil)
	return nil
}

// ─── Teardown ───────────────────────────────────────────────────────────────

// Flush writes a best-effort snapshot of a live attempt, bounded by the flush
// timeout. It is a no-op outside the question phase.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.phase != PhaseQuestions || s.finalizing {
		s.mu.Unlock()
		return nil
	}
	snap := model.SnapshotOf(s.attempt, s.opts.Now())
	epoch := s.epoch
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.FlushTimeout)
	defer cancel()
	if err := s.saveSnapshot(ctx, epoch, snap, false); err != nil && !errors.Is(err, errFenced) {
		return persistenceErr(err)
	}
	return nil
}

// Close stops the timer and autosave without saving. Subsequent operations
// fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.countdown.Stop()
	s.timerGen = 0
	s.stopAutosaveLocked()
	s.mu.Unlock()

	s.closeSubscribers()
}
