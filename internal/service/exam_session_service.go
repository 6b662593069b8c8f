package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/snapshot"
)

// ErrSessionNotFound is returned when no live session exists for an exam and user.
var ErrSessionNotFound = errors.New("no open session for this exam")

// AccessChecker answers the registration/payment question for a user.
type AccessChecker interface {
	CheckAccess(ctx context.Context, examID uuid.UUID, userID int) (model.AccessStatus, error)
}

type sessionKey struct {
	examID uuid.UUID
	userID int
}

type sessionEntry struct {
	sess     *session.Session
	lastSeen time.Time
}

// ExamSessionService owns the live sessions, one per exam and user.
type ExamSessionService struct {
	exams   ExamFetcher
	access  AccessChecker
	store   snapshot.Store
	reports session.ReportSubmitter
	opts    session.Options
	log     zerolog.Logger

	opening  singleflight.Group
	mu       sync.Mutex
	sessions map[sessionKey]*sessionEntry
	now      func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	exams ExamFetcher,
	access AccessChecker,
	store snapshot.Store,
	reports session.ReportSubmitter,
	opts session.Options,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		exams:    exams,
		access:   access,
		store:    store,
		reports:  reports,
		opts:     opts,
		log:      log,
		sessions: make(map[sessionKey]*sessionEntry),
		now:      time.Now,
	}
}

// Open returns the user's live session for an exam, creating it in the auth
// phase after fetching the exam and checking access. Access is checked only
// when a session is created.
func (s *ExamSessionService) Open(ctx context.Context, examID uuid.UUID, userID int) (*session.Session, error) {
	key := sessionKey{examID: examID, userID: userID}
	if sess, ok := s.lookup(key); ok {
		return sess, nil
	}

	v, err, _ := s.opening.Do(fmt.Sprintf("%s:%d", examID, userID), func() (interface{}, error) {
		if sess, ok := s.lookup(key); ok {
			return sess, nil
		}

		exam, err := s.exams.FetchExam(ctx, examID)
		if err != nil {
			return nil, err
		}
		st, err := s.access.CheckAccess(ctx, examID, userID)
		if err != nil {
			return nil, err
		}
		if err := Authorize(exam, st); err != nil {
			return nil, err
		}

		sess := session.New(exam, userID, s.store, s.reports, s.opts, s.log)
		s.mu.Lock()
		s.sessions[key] = &sessionEntry{sess: sess, lastSeen: s.now()}
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		s.mu.Unlock()

		s.log.Info().
			Str("exam_id", examID.String()).
			Int("user_id", userID).
			Msg("Exam session opened")
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

// Get returns an already opened session.
func (s *ExamSessionService) Get(examID uuid.UUID, userID int) (*session.Session, error) {
	if sess, ok := s.lookup(sessionKey{examID: examID, userID: userID}); ok {
		return sess, nil
	}
	return nil, ErrSessionNotFound
}

// Discard closes and forgets a session without saving it.
func (s *ExamSessionService) Discard(examID uuid.UUID, userID int) {
	key := sessionKey{examID: examID, userID: userID}
	s.mu.Lock()
	e, ok := s.sessions[key]
	delete(s.sessions, key)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if ok {
		e.sess.Close()
	}
}

// StartEviction removes sessions nobody has touched for idleTTL, checking
// every interval until ctx is done. Sessions with a running clock or an
// in-flight finalize are kept; the timer finalizes those on its own.
func (s *ExamSessionService) StartEviction(ctx context.Context, idleTTL, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.evictIdle(ctx, idleTTL)
			}
		}
	}()
}

func (s *ExamSessionService) evictIdle(ctx context.Context, idleTTL time.Duration) int {
	cutoff := s.now().Add(-idleTTL)

	s.mu.Lock()
	var idle []*session.Session
	for key, e := range s.sessions {
		if e.lastSeen.After(cutoff) || e.sess.Active() {
			continue
		}
		delete(s.sessions, key)
		idle = append(idle, e.sess)
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	for _, sess := range idle {
		// A frozen attempt awaiting report retry is saved for later recovery.
		if err := sess.Flush(ctx); err != nil {
			s.log.Warn().Err(err).
				Str("exam_id", sess.ExamID().String()).
				Int("user_id", sess.UserID()).
				Msg("Failed to flush idle session")
		}
		sess.Close()
	}
	if len(idle) > 0 {
		s.log.Info().Int("sessions", len(idle)).Msg("Evicted idle exam sessions")
	}
	return len(idle)
}

// Count returns the number of live sessions.
func (s *ExamSessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// FlushAll saves every live attempt best-effort and closes all sessions.
// Each save is bounded by the session flush timeout.
func (s *ExamSessionService) FlushAll(ctx context.Context) {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[sessionKey]*sessionEntry)
	metrics.ActiveSessions.Set(0)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for key, e := range all {
		wg.Add(1)
		go func(key sessionKey, sess *session.Session) {
			defer wg.Done()
			if err := sess.Flush(ctx); err != nil {
				s.log.Warn().Err(err).
					Str("exam_id", key.examID.String()).
					Int("user_id", key.userID).
					Msg("Failed to flush session on shutdown")
			}
			sess.Close()
		}(key, e.sess)
	}
	wg.Wait()
	s.log.Info().Int("sessions", len(all)).Msg("Exam sessions flushed")
}

// lookup returns the session for key and marks it as seen.
func (s *ExamSessionService) lookup(key sessionKey) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.sess, true
}
