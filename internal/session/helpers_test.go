package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/snapshot"
)

const accessCode = "open-sesame"

var errStoreDown = errors.New("store unavailable")

type fakeReports struct {
	mu       sync.Mutex
	failures int
	calls    int
	reports  []*model.Report
}

func (f *fakeReports) SubmitReport(_ context.Context, examID uuid.UUID, userID int, result model.Result) (*model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("database unavailable")
	}
	r := &model.Report{ID: uuid.New(), ExamID: examID, UserID: userID, Result: result, CreatedAt: time.Now()}
	f.reports = append(f.reports, r)
	return r, nil
}

func (f *fakeReports) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

func (f *fakeReports) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingReports holds every call until release is closed.
type blockingReports struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (b *blockingReports) SubmitReport(ctx context.Context, examID uuid.UUID, userID int, result model.Result) (*model.Report, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &model.Report{ID: uuid.New(), ExamID: examID, UserID: userID, Result: result, CreatedAt: time.Now()}, nil
}

// flakyStore wraps a MemoryStore and fails writes on demand.
type flakyStore struct {
	*snapshot.MemoryStore
	failSave  atomic.Bool
	failClear atomic.Bool
	saves     atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: snapshot.NewMemoryStore()}
}

func (f *flakyStore) Save(ctx context.Context, examID uuid.UUID, userID int, snap model.Snapshot) error {
	if f.failSave.Load() {
		return errStoreDown
	}
	f.saves.Add(1)
	return f.MemoryStore.Save(ctx, examID, userID, snap)
}

func (f *flakyStore) Clear(ctx context.Context, examID uuid.UUID, userID int) error {
	if f.failClear.Load() {
		return errStoreDown
	}
	return f.MemoryStore.Clear(ctx, examID, userID)
}

func hashCode(t *testing.T, code string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash access code: %v", err)
	}
	return string(h)
}

// testExam has two questions: 0 answers A, 1 answers B.
func testExam(t *testing.T, durationSeconds, passingMarks int) *model.ExamDefinition {
	t.Helper()
	exam := &model.ExamDefinition{
		ID:              uuid.New(),
		Name:            "Physics midterm",
		DurationSeconds: durationSeconds,
		TotalMarks:      100,
		PassingMarks:    passingMarks,
		AccessCodeHash:  hashCode(t, accessCode),
		Status:          model.ExamStatusPublished,
		Questions: []model.Question{
			{
				ID:            uuid.New(),
				Prompt:        "Unit of force?",
				Options:       map[model.OptionKey]string{model.OptionA: "Newton", model.OptionB: "Joule"},
				CorrectOption: model.OptionA,
			},
			{
				ID:            uuid.New(),
				Prompt:        "Unit of energy?",
				Options:       map[model.OptionKey]string{model.OptionA: "Watt", model.OptionB: "Joule", model.OptionC: "Pascal"},
				CorrectOption: model.OptionB,
			},
		},
	}
	if err := exam.Validate(); err != nil {
		t.Fatalf("invalid test exam: %v", err)
	}
	return exam
}

func testOptions() Options {
	return Options{
		TickInterval:      time.Second,
		AutosaveInterval:  time.Hour,
		RecoveryWindow:    24 * time.Hour,
		ReportAttempts:    3,
		ReportBackoff:     time.Millisecond,
		ReportCallTimeout: time.Second,
		FlushTimeout:      time.Second,
	}
}

func newTestSession(t *testing.T, exam *model.ExamDefinition, store snapshot.Store, reports ReportSubmitter, opts Options) *Session {
	t.Helper()
	s := New(exam, 7, store, reports, opts, zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func startAttempt(t *testing.T, s *Session) {
	t.Helper()
	if err := s.VerifyAccess(context.Background(), accessCode); err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if err := s.AcknowledgeInstructions(Acknowledgment{Agreed: true}); err != nil {
		t.Fatalf("acknowledge instructions: %v", err)
	}
}

func waitForPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Phase() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("phase = %s, want %s", s.Phase(), want)
}

func saveSnapshotAt(t *testing.T, store snapshot.Store, exam *model.ExamDefinition, snap model.Snapshot) {
	t.Helper()
	if err := store.Save(context.Background(), exam.ID, 7, snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}
