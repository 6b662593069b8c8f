package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
)

// Domain Errors
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamNotAvailable = errors.New("exam is not available")
)

// ExamReader is the exam persistence the service needs.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error)
	ListPublished(ctx context.Context) ([]model.ExamDefinition, error)
}

// QuestionReader lists an exam's questions in display order.
type QuestionReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamService serves published exam definitions through a Redis cache.
type ExamService struct {
	exams     ExamReader
	questions QuestionReader
	rdb       *redis.Client
	ttl       time.Duration
	group     singleflight.Group
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamReader, questions QuestionReader, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		ttl:       ttl,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// FetchExam returns a validated, published exam with its questions. Cache
// misses for the same exam are collapsed into one database load.
func (s *ExamService) FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	key := config.CacheKey.ExamDefinitionKey(examID)

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		exam, decErr := model.UnmarshalCachedExam(data)
		if decErr == nil {
			metrics.ExamCacheHits.Inc()
			return exam, nil
		}
		s.log.Warn().Err(decErr).Str("exam_id", examID.String()).Msg("Corrupt exam cache entry; reloading")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache read failed; falling back to database")
	}

	metrics.ExamCacheMisses.Inc()
	v, err, _ := s.group.Do(examID.String(), func() (interface{}, error) {
		exam, err := s.load(ctx, examID)
		if err != nil {
			return nil, err
		}
		s.cache(ctx, exam)
		return exam, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ExamDefinition), nil
}

func (s *ExamService) load(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, fmt.Errorf("%w: status %s", ErrExamNotAvailable, exam.Status)
	}
	return s.attachQuestions(ctx, exam)
}

func (s *ExamService) attachQuestions(ctx context.Context, exam *model.ExamDefinition) (*model.ExamDefinition, error) {
	questions, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	exam.Questions = questions
	if err := exam.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExamNotAvailable, err)
	}
	return exam, nil
}

func (s *ExamService) cache(ctx context.Context, exam *model.ExamDefinition) {
	data, err := exam.MarshalCache()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode exam for cache")
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to cache exam")
	}
}

// WarmExamCache loads every published exam into Redis. Invalid exams are
// skipped with a warning. Returns how many exams were cached.
func (s *ExamService) WarmExamCache(ctx context.Context) (int, error) {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return 0, fmt.Errorf("list published: %w", err)
	}

	warmed := 0
	for i := range exams {
		exam, err := s.attachQuestions(ctx, &exams[i])
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Skipping exam during cache warm-up")
			continue
		}
		s.cache(ctx, exam)
		warmed++
	}
	return warmed, nil
}

// InvalidateCache drops the cached copy of an exam.
func (s *ExamService) InvalidateCache(ctx context.Context, examID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(examID)).Err()
}
