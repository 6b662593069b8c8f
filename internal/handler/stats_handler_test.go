package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/service"
)

type fakeStats struct {
	rows map[uuid.UUID]*model.ExamStats
	err  error
}

func (f *fakeStats) GetByExam(_ context.Context, id uuid.UUID) (*model.ExamStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.rows[id]; ok {
		return s, nil
	}
	return &model.ExamStats{ExamID: id}, nil
}

func newStatsEngine(t *testing.T, repo service.StatsReader) *gin.Engine {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := NewStatsHandler(service.NewStatsService(repo, rdb, zerolog.Nop()))
	r := gin.New()
	r.GET("/api/v1/admin/exams/:id/stats", middleware.RequireAdminJWT(service.NewAuthService(testSecret)), h.GetExamStats)
	return r
}

func TestGetExamStats(t *testing.T) {
	examID := uuid.New()
	repo := &fakeStats{rows: map[uuid.UUID]*model.ExamStats{
		examID: {ExamID: examID, Attempts: 4, Passes: 3, TotalCorrect: 10, UpdatedAt: time.Now()},
	}}
	r := newStatsEngine(t, repo)
	admin := mintToken(t, service.TokenTypeAdmin, 1)

	get := func(path, token string) (int, map[string]json.RawMessage) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		var body map[string]json.RawMessage
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return rec.Code, body
	}

	code, body := get("/api/v1/admin/exams/"+examID.String()+"/stats", admin)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var data struct {
		Attempts int     `json:"attempts"`
		Passes   int     `json:"passes"`
		PassRate float64 `json:"pass_rate"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Attempts != 4 || data.Passes != 3 || data.PassRate != 0.75 {
		t.Fatalf("stats = %+v", data)
	}

	if code, _ := get("/api/v1/admin/exams/bad/stats", admin); code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", code)
	}
	if code, _ := get("/api/v1/admin/exams/"+examID.String()+"/stats", mintToken(t, service.TokenTypeStudent, 5)); code != http.StatusForbidden {
		t.Fatalf("student status = %d, want 403", code)
	}

	repo.err = errors.New("db down")
	if code, _ := get("/api/v1/admin/exams/"+uuid.NewString()+"/stats", admin); code != http.StatusInternalServerError {
		t.Fatalf("repo failure status = %d, want 500", code)
	}
}
