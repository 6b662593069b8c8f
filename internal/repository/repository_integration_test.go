package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/model"
)

func TestRepositoriesAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	requireDocker(t)
	ctx := context.Background()

	dsn, cleanup := startPostgres(t, ctx)
	defer cleanup()

	if err := database.MigrateUp("../../migrations", dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	exams := NewExamRepository(pool)
	questions := NewQuestionRepository(pool)
	access := NewAccessRepository(pool)
	reports := NewReportRepository(pool)
	stats := NewStatsRepository(pool)

	exam := &model.ExamDefinition{
		Name:            "Integration Exam",
		DurationSeconds: 300,
		TotalMarks:      100,
		PassingMarks:    1,
		AccessCodeHash:  "hash-v1",
		Status:          model.ExamStatusPublished,
	}
	if err := exams.Create(ctx, exam); err != nil {
		t.Fatalf("create exam: %v", err)
	}

	// Inserted out of order; ListByExam must return display order.
	for _, q := range []model.Question{
		{Prompt: "second", Options: map[model.OptionKey]string{"A": "x", "B": "y"}, CorrectOption: "B", OrderNum: 2},
		{Prompt: "first", Options: map[model.OptionKey]string{"A": "x", "C": "z"}, CorrectOption: "C", OrderNum: 1},
	} {
		if err := questions.Create(ctx, exam.ID, &q); err != nil {
			t.Fatalf("create question: %v", err)
		}
	}

	t.Run("exam and questions", func(t *testing.T) {
		got, err := exams.GetByID(ctx, exam.ID)
		if err != nil {
			t.Fatalf("get exam: %v", err)
		}
		if got.Name != exam.Name || got.AccessCodeHash != "hash-v1" || got.Status != model.ExamStatusPublished {
			t.Fatalf("unexpected exam %+v", got)
		}

		qs, err := questions.ListByExam(ctx, exam.ID)
		if err != nil {
			t.Fatalf("list questions: %v", err)
		}
		if len(qs) != 2 || qs[0].Prompt != "first" || qs[1].Prompt != "second" {
			t.Fatalf("unexpected question order %+v", qs)
		}
		if qs[0].Options[model.OptionC] != "z" || qs[0].CorrectOption != model.OptionC {
			t.Fatalf("options not round-tripped: %+v", qs[0])
		}

		published, err := exams.ListPublished(ctx)
		if err != nil || len(published) != 1 {
			t.Fatalf("list published = %d, %v", len(published), err)
		}
	})

	t.Run("access code rotation", func(t *testing.T) {
		ok, err := exams.UpdateAccessCodeHash(ctx, exam.ID, "hash-v2")
		if err != nil || !ok {
			t.Fatalf("update hash = %v, %v", ok, err)
		}
		got, _ := exams.GetByID(ctx, exam.ID)
		if got.AccessCodeHash != "hash-v2" {
			t.Fatalf("hash = %q, want hash-v2", got.AccessCodeHash)
		}
	})

	t.Run("registration", func(t *testing.T) {
		st, err := access.GetStatus(ctx, exam.ID, 7)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		if st.IsRegistered {
			t.Fatal("unregistered user reported as registered")
		}

		if err := access.Register(ctx, exam.ID, 7, model.PaymentPending); err != nil {
			t.Fatalf("register: %v", err)
		}
		st, err = access.GetStatus(ctx, exam.ID, 7)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		if !st.IsRegistered || !st.AccessCodeValid || st.PaymentStatus != model.PaymentPending {
			t.Fatalf("unexpected status %+v", st)
		}
	})

	t.Run("reports", func(t *testing.T) {
		rep := &model.Report{
			ExamID: exam.ID,
			UserID: 7,
			Score:  50,
			Result: model.Result{
				CorrectAnswers: []model.Question{{Prompt: "first"}},
				WrongAnswers:   []model.Question{{Prompt: "second"}},
				Verdict:        model.VerdictPass,
			},
		}
		if err := reports.Create(ctx, rep); err != nil {
			t.Fatalf("create report: %v", err)
		}

		got, err := reports.GetByID(ctx, rep.ID)
		if err != nil {
			t.Fatalf("get report: %v", err)
		}
		if got.Result.Verdict != model.VerdictPass || got.Result.CorrectCount() != 1 || got.Score != 50 {
			t.Fatalf("unexpected report %+v", got)
		}

		n, err := reports.CountByExamAndUser(ctx, exam.ID, 7)
		if err != nil || n != 1 {
			t.Fatalf("count = %d, %v", n, err)
		}
	})

	t.Run("stats upsert accumulates", func(t *testing.T) {
		if err := stats.BulkApply(ctx, []StatsDelta{{ExamID: exam.ID, Attempts: 2, Passes: 1, Correct: 3}}); err != nil {
			t.Fatalf("bulk apply: %v", err)
		}
		if err := stats.Apply(ctx, StatsDelta{ExamID: exam.ID, Attempts: 1, Correct: 1}); err != nil {
			t.Fatalf("apply: %v", err)
		}

		st, err := stats.GetByExam(ctx, exam.ID)
		if err != nil {
			t.Fatalf("get stats: %v", err)
		}
		if st.Attempts != 3 || st.Passes != 1 || st.TotalCorrect != 4 {
			t.Fatalf("unexpected stats %+v", st)
		}
	})
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exstem", "POSTGRES_PASSWORD": "exstem", "POSTGRES_DB": "exstem"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exstem:exstem@%s:%s/exstem?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
