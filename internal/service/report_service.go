package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/grading"
	"github.com/stemsi/exstem-session/internal/model"
)

// ReportWriter persists reports.
type ReportWriter interface {
	Create(ctx context.Context, rep *model.Report) error
}

// ExamFetcher returns an exam definition by id.
type ExamFetcher interface {
	FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
}

// ReportService records finalized attempts and announces them to the stats worker.
type ReportService struct {
	repo  ReportWriter
	exams ExamFetcher
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(repo ReportWriter, exams ExamFetcher, rdb *redis.Client, log zerolog.Logger) *ReportService {
	return &ReportService{
		repo:  repo,
		exams: exams,
		rdb:   rdb,
		log:   log.With().Str("component", "report_service").Logger(),
	}
}

// SubmitReport stores the report in Postgres, then queues a report event.
// The queue push is best-effort: the database row is the system of record.
func (s *ReportService) SubmitReport(ctx context.Context, examID uuid.UUID, userID int, result model.Result) (*model.Report, error) {
	rep := &model.Report{ExamID: examID, UserID: userID, Result: result}
	if exam, err := s.exams.FetchExam(ctx, examID); err == nil {
		rep.Score = grading.Score(result, exam.TotalMarks)
	} else {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam lookup failed; storing report without score")
	}

	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	ev := model.ReportEvent{
		ReportID: rep.ID,
		ExamID:   examID,
		UserID:   userID,
		Correct:  result.CorrectCount(),
		Passed:   result.Verdict == model.VerdictPass,
	}
	raw, _ := json.Marshal(ev)
	if err := s.rdb.RPush(ctx, config.WorkerKey.ReportEventsQueue, raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("report_id", rep.ID.String()).Msg("Failed to queue report event")
	}
	return rep, nil
}
