package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edushift/examgate-backend/internal/model"
	"github.com/edushift/examgate-backend/internal/repository"
	"github.com/edushift/examgate-backend/internal/response"
	"github.com/edushift/examgate-backend/internal/service"
	"github.com/edushift/examgate-backend/internal/validator"
)

// GradingHandler handles the admin grading surface: per-exam result lists,
// manual grading of free-text answers, and finalization.
type GradingHandler struct {
	attemptService  *service.AttemptService
	securityService *service.SecurityService
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(attemptService *service.AttemptService, securityService *service.SecurityService) *GradingHandler {
	return &GradingHandler{
		attemptService:  attemptService,
		securityService: securityService,
	}
}

// ListResults godoc
// GET /api/v1/admin/exams/:exam_id/results?page=&per_page=
// Returns attempt results for an exam, newest first.
func (h *GradingHandler) ListResults(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, perPage := paginationParams(c)

	results, total, err := h.attemptService.ListResults(c.Request.Context(), examID, page, perPage)
	if err != nil {
		failFromService(c, err)
		return
	}

	if results == nil {
		results = []repository.AttemptResult{}
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}

// GetSecurityLog godoc
// GET /api/v1/admin/attempts/:attempt_id/security-events
// Returns the attempt's security event log in report order.
func (h *GradingHandler) GetSecurityLog(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.securityService.GetLog(c.Request.Context(), attemptID)
	if err != nil {
		failFromService(c, err)
		return
	}

	if events == nil {
		events = []model.SecurityEvent{}
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// GradeAnswer godoc
// PUT /api/v1/admin/attempts/:attempt_id/answers/:answer_id/grade
// Applies a manual score to a short-answer or essay answer, then re-runs
// attempt finalization.
func (h *GradingHandler) GradeAnswer(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	answerID, err := uuid.Parse(c.Param("answer_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ManualGradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.GradeAnswer(c.Request.Context(), attemptID, answerID, req.Score)
	if err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Finalize godoc
// POST /api/v1/admin/attempts/:attempt_id/finalize
// Re-runs grading aggregation for a completed attempt. Idempotent.
func (h *GradingHandler) Finalize(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attemptService.Finalize(c.Request.Context(), attemptID)
	if err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

func paginationParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
