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

// SecurityHandler handles browser security event reports from exam clients.
type SecurityHandler struct {
	securityService *service.SecurityService
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(securityService *service.SecurityService) *SecurityHandler {
	return &SecurityHandler{securityService: securityService}
}

// ReportEvent godoc
// POST /api/v1/student/attempts/:attempt_id/security-events
// Records a browser security event and returns the updated counters. The
// response tells the client whether the attempt was auto-submitted.
func (h *SecurityHandler) ReportEvent(c *gin.Context) {
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

	var req model.ReportSecurityEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.securityService.Report(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
