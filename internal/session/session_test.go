package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/snapshot"
)

func TestVerifyAccess(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())

	err := s.VerifyAccess(context.Background(), "wrong")
	if !errors.Is(err, ErrInvalidAccessCode) {
		t.Fatalf("err = %v, want ErrInvalidAccessCode", err)
	}
	if s.Phase() != PhaseAuth {
		t.Fatalf("phase = %s after bad code, want auth", s.Phase())
	}

	if err := s.VerifyAccess(context.Background(), accessCode); err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if s.Phase() != PhaseInstructions {
		t.Fatalf("phase = %s, want instructions", s.Phase())
	}

	var serr *Error
	err = s.VerifyAccess(context.Background(), accessCode)
	if !errors.As(err, &serr) || !errors.Is(err, ErrInvalidPhaseTransition) {
		t.Fatalf("err = %v, want *Error wrapping ErrInvalidPhaseTransition", err)
	}
	if serr.Op != "verify_access" || serr.Phase != PhaseInstructions {
		t.Fatalf("error context = %+v", serr)
	}
}

func TestAcknowledgeRequiresAgreement(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())
	if err := s.VerifyAccess(context.Background(), accessCode); err != nil {
		t.Fatalf("verify access: %v", err)
	}

	err := s.AcknowledgeInstructions(Acknowledgment{Agreed: false})
	if !errors.Is(err, ErrAcknowledgmentRequired) {
		t.Fatalf("err = %v, want ErrAcknowledgmentRequired", err)
	}
	if s.Phase() != PhaseInstructions {
		t.Fatalf("phase = %s, want instructions", s.Phase())
	}
	if s.countdown.Running() {
		t.Fatal("timer started without acknowledgment")
	}

	if err := s.AcknowledgeInstructions(Acknowledgment{Agreed: true}); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	v := s.View()
	if v.Phase != PhaseQuestions || v.Attempt.SecondsRemaining != 600 {
		t.Fatalf("view = %+v, want questions with 600s", v)
	}
	if !s.countdown.Running() {
		t.Fatal("timer not running in questions")
	}
}

func TestPhaseGuards(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())

	checks := map[string]error{
		"select":   s.SelectOption(0, model.OptionA),
		"navigate": s.Navigate(0),
		"exit":     s.Exit(context.Background()),
		"review":   s.Review(),
		"retake":   s.Retake(context.Background()),
		"ack":      s.AcknowledgeInstructions(Acknowledgment{Agreed: true}),
	}
	_, toggleErr := s.ToggleReview(0)
	checks["toggle"] = toggleErr
	_, submitErr := s.Submit(context.Background())
	checks["submit"] = submitErr

	for name, err := range checks {
		if !errors.Is(err, ErrInvalidPhaseTransition) {
			t.Errorf("%s in auth: err = %v, want ErrInvalidPhaseTransition", name, err)
		}
	}
	if s.Phase() != PhaseAuth {
		t.Fatalf("phase changed to %s", s.Phase())
	}
}

func TestSelectOptionIdempotentAndIsolated(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())
	startAttempt(t, s)

	if err := s.SelectOption(1, model.OptionC); err != nil {
		t.Fatalf("select 1: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.SelectOption(0, model.OptionB); err != nil {
			t.Fatalf("select 0: %v", err)
		}
	}
	a := s.View().Attempt
	if a.SelectedOptions[0] != model.OptionB || a.SelectedOptions[1] != model.OptionC || len(a.SelectedOptions) != 2 {
		t.Fatalf("selected = %v", a.SelectedOptions)
	}

	// last write wins
	if err := s.SelectOption(0, model.OptionA); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if got := s.View().Attempt.SelectedOptions[0]; got != model.OptionA {
		t.Fatalf("selected[0] = %s, want A", got)
	}
}

func TestSelectOptionRejectsInvalidInput(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())
	startAttempt(t, s)

	// question 0 only offers A and B
	if err := s.SelectOption(0, model.OptionC); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("err = %v, want ErrInvalidOption", err)
	}
	if err := s.SelectOption(2, model.OptionA); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("err = %v, want ErrIndexOutOfRange", err)
	}
	if err := s.SelectOption(-1, model.OptionA); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("err = %v, want ErrIndexOutOfRange", err)
	}
	if n := len(s.View().Attempt.SelectedOptions); n != 0 {
		t.Fatalf("rejected selections were recorded: %d", n)
	}
}

func TestToggleReviewAndNavigate(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())
	startAttempt(t, s)

	marked, err := s.ToggleReview(1)
	if err != nil || !marked {
		t.Fatalf("first toggle: marked=%v err=%v", marked, err)
	}
	marked, err = s.ToggleReview(1)
	if err != nil || marked {
		t.Fatalf("second toggle: marked=%v err=%v", marked, err)
	}
	if _, err := s.ToggleReview(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("err = %v, want ErrIndexOutOfRange", err)
	}

	if err := s.Navigate(1); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := s.Navigate(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("err = %v, want ErrIndexOutOfRange", err)
	}
	if got := s.View().Attempt.CurrentIndex; got != 1 {
		t.Fatalf("current index = %d, want 1", got)
	}
}

func TestSubmitGradesAndRecordsReport(t *testing.T) {
	exam := testExam(t, 600, 1)
	store := snapshot.NewMemoryStore()
	reports := &fakeReports{}
	s := newTestSession(t, exam, store, reports, testOptions())
	startAttempt(t, s)

	_ = s.SelectOption(0, model.OptionA)
	_ = s.SelectOption(1, model.OptionA)
	_ = store.Save(context.Background(), exam.ID, 7, model.Snapshot{SavedAtEpochMillis: time.Now().UnixMilli()})

	out, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Result.CorrectCount() != 1 || out.Result.WrongCount() != 1 || out.Result.Verdict != model.VerdictPass {
		t.Fatalf("result = %d/%d/%s, want 1/1/Pass", out.Result.CorrectCount(), out.Result.WrongCount(), out.Result.Verdict)
	}
	if out.Trigger != TriggerSubmit {
		t.Fatalf("trigger = %s, want submit", out.Trigger)
	}
	if reports.count() != 1 {
		t.Fatalf("reports = %d, want 1", reports.count())
	}
	if s.Phase() != PhaseResult {
		t.Fatalf("phase = %s, want result", s.Phase())
	}
	if s.countdown.Running() {
		t.Fatal("timer still running after submit")
	}
	if store.Len() != 0 {
		t.Fatal("snapshot not cleared after finalize")
	}

	v := s.View()
	if v.Attempt != nil || v.Outcome == nil || v.Outcome.Correct != 1 || v.Outcome.Score != 50 {
		t.Fatalf("view after submit = %+v", v)
	}
	if v.Outcome.CorrectAnswers != nil {
		t.Fatal("result phase should not expose per-question answers")
	}

	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrInvalidPhaseTransition) {
		t.Fatalf("second submit err = %v, want ErrInvalidPhaseTransition", err)
	}
}

func TestSubmitAndExpiryRaceProducesOneReport(t *testing.T) {
	for i := 0; i < 50; i++ {
		exam := testExam(t, 1, 1)
		reports := &fakeReports{}
		opts := testOptions()
		opts.TickInterval = time.Millisecond
		s := New(exam, 7, snapshot.NewMemoryStore(), reports, opts, zerolog.Nop())

		startAttempt(t, s)

		var wg sync.WaitGroup
		outcomes := make(chan *Outcome, 3)
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := s.Submit(context.Background())
				switch {
				case err == nil:
					outcomes <- out
				case errors.Is(err, ErrInvalidPhaseTransition):
				default:
					t.Errorf("submit: unexpected error %v", err)
				}
			}()
		}
		wg.Wait()
		close(outcomes)
		waitForPhase(t, s, PhaseResult)
		time.Sleep(5 * time.Millisecond)

		if n := reports.count(); n != 1 {
			t.Fatalf("iteration %d: %d reports, want exactly 1", i, n)
		}
		for out := range outcomes {
			if out == nil || out.Report.ID != reports.reports[0].ID {
				t.Fatalf("iteration %d: submit returned %+v, want the stored report", i, out)
			}
		}
		s.Close()
	}
}

func TestReportFailureKeepsQuestionsAndAllowsRetry(t *testing.T) {
	exam := testExam(t, 600, 1)
	reports := &fakeReports{failures: 3}
	store := snapshot.NewMemoryStore()
	s := newTestSession(t, exam, store, reports, testOptions())
	startAttempt(t, s)
	_ = s.SelectOption(0, model.OptionA)

	_, err := s.Submit(context.Background())
	if !errors.Is(err, ErrReportSubmissionFailed) {
		t.Fatalf("err = %v, want ErrReportSubmissionFailed", err)
	}
	if reports.callCount() != 3 {
		t.Fatalf("report attempts = %d, want 3", reports.callCount())
	}
	if s.Phase() != PhaseQuestions {
		t.Fatalf("phase = %s, want questions", s.Phase())
	}
	if s.countdown.Running() {
		t.Fatal("timer should stay stopped after a failed finalize")
	}
	if got := s.View().Attempt.SelectedOptions[0]; got != model.OptionA {
		t.Fatalf("attempt lost after failed submit: %v", got)
	}

	out, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if out.Result.Verdict != model.VerdictPass || reports.count() != 1 {
		t.Fatalf("retry result = %s, reports = %d", out.Result.Verdict, reports.count())
	}
}

func TestExpiryReportFailureFreezesAttempt(t *testing.T) {
	exam := testExam(t, 30, 2)
	reports := &fakeReports{failures: 3}
	opts := testOptions()
	opts.TickInterval = time.Millisecond
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), reports, opts)

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()
	startAttempt(t, s)
	if err := s.SelectOption(0, model.OptionA); err != nil {
		t.Fatalf("select before deadline: %v", err)
	}

	timeout := time.After(3 * time.Second)
	for failed := false; !failed; {
		select {
		case ev := <-events:
			failed = ev.Type == EventError
		case <-timeout:
			t.Fatal("expiry finalize did not fail")
		}
	}

	if s.Phase() != PhaseQuestions || s.countdown.Running() {
		t.Fatalf("phase = %s, running = %v; want questions with timer stopped", s.Phase(), s.countdown.Running())
	}
	if !s.View().Finalizing {
		t.Fatal("view should report the attempt as finalizing")
	}
	if err := s.SelectOption(1, model.OptionB); !errors.Is(err, ErrFinalizeInProgress) {
		t.Fatalf("select after deadline err = %v, want ErrFinalizeInProgress", err)
	}
	if _, err := s.ToggleReview(1); !errors.Is(err, ErrFinalizeInProgress) {
		t.Fatalf("toggle after deadline err = %v, want ErrFinalizeInProgress", err)
	}
	if err := s.Navigate(1); !errors.Is(err, ErrFinalizeInProgress) {
		t.Fatalf("navigate after deadline err = %v, want ErrFinalizeInProgress", err)
	}
	if err := s.Exit(context.Background()); !errors.Is(err, ErrFinalizeInProgress) {
		t.Fatalf("exit after deadline err = %v, want ErrFinalizeInProgress", err)
	}

	out, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if out.Result.Verdict != model.VerdictFail || out.Result.CorrectCount() != 1 {
		t.Fatalf("retried result = %s correct=%d, want Fail correct=1", out.Result.Verdict, out.Result.CorrectCount())
	}
	if out.Trigger != TriggerExpiry {
		t.Fatalf("trigger = %s, want expiry", out.Trigger)
	}
	if reports.count() != 1 {
		t.Fatalf("reports = %d, want 1", reports.count())
	}
}

func TestSubmitDuringFinalizeReturnsWinningOutcome(t *testing.T) {
	exam := testExam(t, 600, 1)
	reports := &blockingReports{release: make(chan struct{}), entered: make(chan struct{})}
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), reports, testOptions())
	startAttempt(t, s)
	_ = s.SelectOption(0, model.OptionA)

	first := make(chan *Outcome, 1)
	go func() {
		out, err := s.Submit(context.Background())
		if err != nil {
			t.Errorf("first submit: %v", err)
		}
		first <- out
	}()
	<-reports.entered

	second := make(chan *Outcome, 1)
	go func() {
		out, err := s.Submit(context.Background())
		if err != nil {
			t.Errorf("second submit: %v", err)
		}
		second <- out
	}()
	time.Sleep(10 * time.Millisecond)
	close(reports.release)

	a, b := <-first, <-second
	if a == nil || a != b {
		t.Fatalf("outcomes differ: %+v vs %+v", a, b)
	}
	if reports.calls.Load() != 1 {
		t.Fatalf("report calls = %d, want 1", reports.calls.Load())
	}
}

func TestClearFailureStillEntersResult(t *testing.T) {
	exam := testExam(t, 600, 1)
	store := newFlakyStore()
	reports := &fakeReports{}
	s := newTestSession(t, exam, store, reports, testOptions())
	startAttempt(t, s)
	store.failClear.Store(true)

	out, err := s.Submit(context.Background())
	if !errors.Is(err, ErrPersistenceWriteFailed) {
		t.Fatalf("err = %v, want ErrPersistenceWriteFailed", err)
	}
	if out == nil || reports.count() != 1 {
		t.Fatalf("outcome = %v, reports = %d; want outcome and one report", out, reports.count())
	}
	if s.Phase() != PhaseResult {
		t.Fatalf("phase = %s, want result", s.Phase())
	}
}

func TestReviewAndRetake(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())
	startAttempt(t, s)
	_ = s.SelectOption(0, model.OptionA)
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := s.Review(); err != nil {
		t.Fatalf("review: %v", err)
	}
	v := s.View()
	if v.Phase != PhaseReview || len(v.Outcome.CorrectAnswers) != 1 || len(v.Outcome.WrongAnswers) != 1 {
		t.Fatalf("review view = %+v", v.Outcome)
	}

	if err := s.Retake(context.Background()); err != nil {
		t.Fatalf("retake: %v", err)
	}
	if s.Phase() != PhaseInstructions || s.View().Recovery != nil {
		t.Fatalf("retake should land in instructions without recovery offer")
	}
	if err := s.AcknowledgeInstructions(Acknowledgment{Agreed: true}); err != nil {
		t.Fatalf("acknowledge after retake: %v", err)
	}
	a := s.View().Attempt
	if len(a.SelectedOptions) != 0 || a.SecondsRemaining != 600 {
		t.Fatalf("retake did not start from scratch: %+v", a)
	}
}

func TestRetakeIgnoresUnclearedSnapshot(t *testing.T) {
	exam := testExam(t, 600, 1)
	store := newFlakyStore()
	s := newTestSession(t, exam, store, &fakeReports{}, testOptions())
	startAttempt(t, s)

	if err := s.Exit(context.Background()); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if err := s.AcknowledgeInstructions(Acknowledgment{Agreed: true, Resume: true}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	_ = s.SelectOption(0, model.OptionA)
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	store.failClear.Store(true)
	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrPersistenceWriteFailed) {
		t.Fatalf("submit err = %v, want ErrPersistenceWriteFailed", err)
	}
	if _, found, _ := store.Load(context.Background(), exam.ID, 7); !found {
		t.Fatal("graded snapshot should still be stored")
	}

	if err := s.Retake(context.Background()); err != nil {
		t.Fatalf("retake: %v", err)
	}
	if s.View().Recovery != nil {
		t.Fatal("retake offered the graded attempt for recovery")
	}
	if err := s.AcknowledgeInstructions(Acknowledgment{Agreed: true, Resume: true}); err != nil {
		t.Fatalf("acknowledge after retake: %v", err)
	}
	if a := s.View().Attempt; len(a.SelectedOptions) != 0 {
		t.Fatalf("retake reused graded selections: %v", a.SelectedOptions)
	}
}

func TestRetakeClearsStoredSnapshot(t *testing.T) {
	exam := testExam(t, 600, 1)
	store := newFlakyStore()
	s := newTestSession(t, exam, store, &fakeReports{}, testOptions())
	startAttempt(t, s)
	_ = s.SelectOption(0, model.OptionA)
	_ = s.Flush(context.Background())

	store.failClear.Store(true)
	_, _ = s.Submit(context.Background())
	store.failClear.Store(false)

	if err := s.Retake(context.Background()); err != nil {
		t.Fatalf("retake: %v", err)
	}
	if _, found, _ := store.Load(context.Background(), exam.ID, 7); found {
		t.Fatal("retake left the graded snapshot in the store")
	}
}

func TestRetakeFromResult(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())
	startAttempt(t, s)
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.Retake(context.Background()); err != nil {
		t.Fatalf("retake from result: %v", err)
	}
	if s.View().Outcome != nil {
		t.Fatal("outcome survived retake")
	}
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	exam := testExam(t, 600, 1)
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, testOptions())
	startAttempt(t, s)

	s.Close()
	s.Close()
	if s.countdown.Running() {
		t.Fatal("timer running after Close")
	}
	if err := s.SelectOption(0, model.OptionA); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

func TestSubscribeReceivesTicksAndFinalize(t *testing.T) {
	exam := testExam(t, 3, 0)
	opts := testOptions()
	opts.TickInterval = 2 * time.Millisecond
	s := newTestSession(t, exam, snapshot.NewMemoryStore(), &fakeReports{}, opts)

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()
	startAttempt(t, s)

	var sawTick, sawFinalized bool
	timeout := time.After(3 * time.Second)
	for !sawFinalized {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventTick:
				sawTick = true
			case EventFinalized:
				sawFinalized = true
				if ev.Trigger != TriggerExpiry || ev.Verdict != model.VerdictPass {
					t.Fatalf("finalized event = %+v", ev)
				}
			}
		case <-timeout:
			t.Fatal("no finalized event")
		}
	}
	if !sawTick {
		t.Fatal("no tick event before expiry")
	}
}

func TestNoTicksDeliveredAfterExit(t *testing.T) {
	for i := 0; i < 20; i++ {
		exam := testExam(t, 600, 1)
		opts := testOptions()
		opts.TickInterval = time.Millisecond
		s := New(exam, 7, snapshot.NewMemoryStore(), &fakeReports{}, opts, zerolog.Nop())

		events, unsubscribe := s.Subscribe()
		startAttempt(t, s)
		time.Sleep(3 * time.Millisecond)
		if err := s.Exit(context.Background()); err != nil {
			t.Fatalf("exit: %v", err)
		}

	drain:
		for {
			select {
			case <-events:
			default:
				break drain
			}
		}
		time.Sleep(5 * time.Millisecond)
		select {
		case ev := <-events:
			t.Fatalf("iteration %d: event %+v delivered after exit returned", i, ev)
		default:
		}
		unsubscribe()
		s.Close()
	}
}
