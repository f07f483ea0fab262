package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edushift/examgate-backend/internal/middleware"
	"github.com/edushift/examgate-backend/internal/model"
	"github.com/edushift/examgate-backend/internal/response"
	"github.com/edushift/examgate-backend/internal/service"
	"github.com/edushift/examgate-backend/internal/validator"
)

// AttemptHandler handles in-attempt operations: answer writes, section
// progression, timer checkpoints, and submission.
type AttemptHandler struct {
	attemptService *service.AttemptService
	answerService  *service.AnswerService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, answerService *service.AnswerService) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		answerService:  answerService,
	}
}

// UpsertAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/questions/:question_id/answer
// Records or replaces the student's response to one question.
func (h *AttemptHandler) UpsertAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, questionID, ok := attemptQuestionIDs(c)
	if !ok {
		return
	}

	var req model.UpsertAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.answerService.Upsert(c.Request.Context(), attemptID, questionID, claims.UserID, &req); err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// MarkForReview godoc
// PUT /api/v1/student/attempts/:attempt_id/questions/:question_id/review
// Toggles the review flag on a question.
func (h *AttemptHandler) MarkForReview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, questionID, ok := attemptQuestionIDs(c)
	if !ok {
		return
	}

	var req model.MarkForReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.answerService.SetMarkedForReview(c.Request.Context(), attemptID, questionID, claims.UserID, *req.Marked); err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// ListAnswers godoc
// GET /api/v1/student/attempts/:attempt_id/answers
// Returns every answer of the attempt for state reconstruction.
func (h *AttemptHandler) ListAnswers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	answers, err := h.answerService.List(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failFromService(c, err)
		return
	}

	if answers == nil {
		answers = []model.Answer{}
	}

	response.Success(c, http.StatusOK, gin.H{"answers": answers})
}

// SectionStart godoc
// POST /api/v1/student/attempts/:attempt_id/sections/:section_id/start
// Starts a section's clock. Idempotent: re-starting returns the running row.
func (h *AttemptHandler) SectionStart(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, sectionID, ok := attemptSectionIDs(c)
	if !ok {
		return
	}

	sa, err := h.attemptService.SectionStart(c.Request.Context(), attemptID, sectionID, claims.UserID)
	if err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"section_attempt": sa})
}

// SectionUpdateTime godoc
// PUT /api/v1/student/attempts/:attempt_id/sections/:section_id/time
// Persists a countdown checkpoint. The stored value only ever decreases.
func (h *AttemptHandler) SectionUpdateTime(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, sectionID, ok := attemptSectionIDs(c)
	if !ok {
		return
	}

	var req model.SectionUpdateTimeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SectionUpdateTime(c.Request.Context(), attemptID, &sectionID, claims.UserID, req.RemainingSeconds); err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// UpdateTime godoc
// PUT /api/v1/student/attempts/:attempt_id/time
// Countdown checkpoint for non-sectioned exams (implicit section).
func (h *AttemptHandler) UpdateTime(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SectionUpdateTimeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SectionUpdateTime(c.Request.Context(), attemptID, nil, claims.UserID, req.RemainingSeconds); err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// AdvanceSection godoc
// POST /api/v1/student/attempts/:attempt_id/sections/:section_id/advance
// Completes the given section and opens the next one, or completes the
// attempt when it was the last. Sections never reopen.
func (h *AttemptHandler) AdvanceSection(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, sectionID, ok := attemptSectionIDs(c)
	if !ok {
		return
	}

	next, result, err := h.attemptService.AdvanceSection(c.Request.Context(), attemptID, sectionID, claims.UserID)
	if err != nil {
		failFromService(c, err)
		return
	}

	if result != nil {
		response.Success(c, http.StatusOK, gin.H{"result": result})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"next_section": next})
}

// Submit godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Completes and grades the attempt. Safe to retry: a completed attempt
// returns its stored result.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID, req.Force)
	if err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

func attemptQuestionIDs(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, uuid.Nil, false
	}
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, uuid.Nil, false
	}
	return attemptID, questionID, true
}

func attemptSectionIDs(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, uuid.Nil, false
	}
	sectionID, err := uuid.Parse(c.Param("section_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, uuid.Nil, false
	}
	return attemptID, sectionID, true
}
