package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/validator"
)

// ─── Requests ───────────────────────────────────────────────────────

type accessRequest struct {
	Code string `json:"code" binding:"required,max=128"`
}

type instructionsRequest struct {
	Agreed bool `json:"agreed"`
	Resume bool `json:"resume"`
}

type answerRequest struct {
	Option string `json:"option" binding:"required,option_key"`
}

type questionURI struct {
	ExamID string `uri:"exam_id" binding:"required,uuid"`
	Index  *int   `uri:"index" binding:"required"`
}

type reviewMarkResponse struct {
	Marked bool         `json:"marked"`
	View   session.View `json:"session"`
}

// ExamSessionHandler exposes the exam session state machine over HTTP.
type ExamSessionHandler struct {
	sessions *service.ExamSessionService
}

// NewExamSessionHandler creates a new ExamSessionHandler.
func NewExamSessionHandler(sessions *service.ExamSessionService) *ExamSessionHandler {
	return &ExamSessionHandler{sessions: sessions}
}

// Open godoc
// POST /api/v1/student/exams/:exam_id/session
// Opens (or returns) the caller's session. Registration and payment are checked here.
func (h *ExamSessionHandler) Open(c *gin.Context) {
	claims, examID, ok := h.identify(c)
	if !ok {
		return
	}

	sess, err := h.sessions.Open(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// Get godoc
// GET /api/v1/student/exams/:exam_id/session
// Returns the current view of the caller's session.
func (h *ExamSessionHandler) Get(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// VerifyAccess godoc
// POST /api/v1/student/exams/:exam_id/session/access
func (h *ExamSessionHandler) VerifyAccess(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	var req accessRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.VerifyAccess(c.Request.Context(), req.Code); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// AcknowledgeInstructions godoc
// POST /api/v1/student/exams/:exam_id/session/instructions
// Starts the attempt, optionally resuming the offered snapshot.
func (h *ExamSessionHandler) AcknowledgeInstructions(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	var req instructionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.AcknowledgeInstructions(session.Acknowledgment{Agreed: req.Agreed, Resume: req.Resume}); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// SelectOption godoc
// PUT /api/v1/student/exams/:exam_id/session/answers/:index
func (h *ExamSessionHandler) SelectOption(c *gin.Context) {
	sess, index, ok := h.lookupQuestion(c)
	if !ok {
		return
	}

	var req answerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.SelectOption(index, model.OptionKey(req.Option)); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// ToggleReview godoc
// POST /api/v1/student/exams/:exam_id/session/review-marks/:index
func (h *ExamSessionHandler) ToggleReview(c *gin.Context) {
	sess, index, ok := h.lookupQuestion(c)
	if !ok {
		return
	}

	marked, err := sess.ToggleReview(index)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, reviewMarkResponse{Marked: marked, View: sess.View()})
}

// Navigate godoc
// POST /api/v1/student/exams/:exam_id/session/navigate/:index
func (h *ExamSessionHandler) Navigate(c *gin.Context) {
	sess, index, ok := h.lookupQuestion(c)
	if !ok {
		return
	}

	if err := sess.Navigate(index); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/session/submit
// Finalizes the attempt. When the report is stored but the snapshot could not
// be cleared, the result is still returned alongside the error code.
func (h *ExamSessionHandler) Submit(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	outcome, err := sess.Submit(c.Request.Context())
	if err != nil {
		if outcome != nil && errors.Is(err, session.ErrPersistenceWriteFailed) {
			response.FailWithData(c, http.StatusOK, response.ErrPersistenceWrite, sess.View())
			return
		}
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// Exit godoc
// POST /api/v1/student/exams/:exam_id/session/exit
// Saves the attempt and returns to the instructions screen.
func (h *ExamSessionHandler) Exit(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := sess.Exit(c.Request.Context()); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// Review godoc
// POST /api/v1/student/exams/:exam_id/session/review
func (h *ExamSessionHandler) Review(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := sess.Review(); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// Retake godoc
// POST /api/v1/student/exams/:exam_id/session/retake
func (h *ExamSessionHandler) Retake(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := sess.Retake(c.Request.Context()); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// ─── Helpers ────────────────────────────────────────────────────────

func (h *ExamSessionHandler) identify(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, examID, true
}

func (h *ExamSessionHandler) lookup(c *gin.Context) (*session.Session, bool) {
	claims, examID, ok := h.identify(c)
	if !ok {
		return nil, false
	}

	sess, err := h.sessions.Get(examID, claims.UserID)
	if err != nil {
		failWith(c, err)
		return nil, false
	}
	return sess, true
}

func (h *ExamSessionHandler) lookupQuestion(c *gin.Context) (*session.Session, int, bool) {
	var uri questionURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return nil, 0, false
	}

	sess, ok := h.lookup(c)
	if !ok {
		return nil, 0, false
	}
	return sess, *uri.Index, true
}
