package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

type statsResponse struct {
	*model.ExamStats
	PassRate float64 `json:"pass_rate"`
}

// StatsHandler serves aggregated exam statistics to administrators.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// GetExamStats godoc
// GET /api/v1/admin/exams/:id/stats
func (h *StatsHandler) GetExamStats(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	st, err := h.stats.GetStats(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, statsResponse{ExamStats: st, PassRate: st.PassRate()})
}
