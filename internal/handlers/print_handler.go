package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swad-platform/examprint-service/internal/repositories"
	"github.com/swad-platform/examprint-service/internal/services"
	"github.com/swad-platform/examprint-service/internal/utils"
	"github.com/swad-platform/examprint-service/internal/validator"
)

type PrintHandler struct {
	BaseHandler
	printService services.PrintService
	validator    *validator.Validator
}

func NewPrintHandler(
	printService services.PrintService,
	validator *validator.Validator,
	logger utils.Logger,
) *PrintHandler {
	return &PrintHandler{
		BaseHandler:  NewBaseHandler(logger),
		printService: printService,
		validator:    validator,
	}
}

// OpenPrint returns the caller's print for a session, creating it on first
// access.
func (h *PrintHandler) OpenPrint(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	h.LogRequest(c, "Opening exam print", "session_id", sessionID)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	print, err := h.printService.Open(c.Request.Context(), sessionID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, print)
}

// SubmitAnswer records one answer on a print.
func (h *PrintHandler) SubmitAnswer(c *gin.Context) {
	printID := h.parseIDParam(c, "id")
	if printID == 0 {
		return
	}

	h.LogRequest(c, "Submitting answer", "print_id", printID)

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	print, err := h.printService.SubmitAnswer(c.Request.Context(), printID, &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, print)
}

// FinishPrint finalizes a print.
func (h *PrintHandler) FinishPrint(c *gin.Context) {
	printID := h.parseIDParam(c, "id")
	if printID == 0 {
		return
	}

	h.LogRequest(c, "Finishing exam print", "print_id", printID)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	print, err := h.printService.Finish(c.Request.Context(), printID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, print)
}

// GetPrint retrieves a print by ID.
func (h *PrintHandler) GetPrint(c *gin.Context) {
	printID := h.parseIDParam(c, "id")
	if printID == 0 {
		return
	}

	h.LogRequest(c, "Getting print", "print_id", printID)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	print, err := h.printService.GetByID(c.Request.Context(), printID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, print)
}

// GetMyPrint retrieves the caller's print for a session without creating one.
func (h *PrintHandler) GetMyPrint(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	h.LogRequest(c, "Getting own print", "session_id", sessionID)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	print, err := h.printService.GetBySession(c.Request.Context(), sessionID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, print)
}

// ListSessionPrints lists a session's prints for staff review.
func (h *PrintHandler) ListSessionPrints(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	h.LogRequest(c, "Listing session prints", "session_id", sessionID)

	filters := h.parsePrintFilters(c)
	prints, err := h.printService.ListBySession(c.Request.Context(), sessionID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, prints)
}

// RemoveUserPrints deletes every print of a user, driven by the external
// account deletion workflow.
func (h *PrintHandler) RemoveUserPrints(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid user_id",
		})
		return
	}

	h.LogRequest(c, "Removing prints for user", "target_user_id", userID)

	removed, err := h.printService.RemoveForUser(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Prints removed",
		Data:    gin.H{"removed": removed},
	})
}

// RemoveUserCoursePrints deletes a user's prints within one course.
func (h *PrintHandler) RemoveUserCoursePrints(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid user_id",
		})
		return
	}
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	h.LogRequest(c, "Removing prints for user in course",
		"target_user_id", userID,
		"course_id", courseID)

	removed, err := h.printService.RemoveForUserInCourse(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Prints removed",
		Data:    gin.H{"removed": removed},
	})
}

// RemoveCoursePrints deletes every print under a course, driven by the
// external course deletion workflow.
func (h *PrintHandler) RemoveCoursePrints(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	h.LogRequest(c, "Removing prints for course", "course_id", courseID)

	removed, err := h.printService.RemoveForCourse(c.Request.Context(), courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Prints removed",
		Data:    gin.H{"removed": removed},
	})
}

// ===== HELPERS =====

func (h *PrintHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
		})
		return 0
	}
	return uint(id)
}

func (h *PrintHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func (h *PrintHandler) parsePrintFilters(c *gin.Context) repositories.PrintFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.PrintFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if sentStr := c.Query("sent"); sentStr != "" {
		sent := sentStr == "true"
		filters.Sent = &sent
	}
	if userIDStr := strings.TrimSpace(c.Query("user_id")); userIDStr != "" {
		filters.UserID = &userIDStr
	}
	if fromStr := c.Query("date_from"); fromStr != "" {
		if from, err := time.Parse(time.RFC3339, fromStr); err == nil {
			filters.DateFrom = &from
		}
	}
	if toStr := c.Query("date_to"); toStr != "" {
		if to, err := time.Parse(time.RFC3339, toStr); err == nil {
			filters.DateTo = &to
		}
	}

	return filters
}

func (h *PrintHandler) handleServiceError(c *gin.Context, err error) {
	var validationError *services.ValidationError
	if errors.As(err, &validationError) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationError.Fields,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var integrityError *services.DataIntegrityError
	if errors.As(err, &integrityError) {
		h.LogError(c, err, "Data integrity fault")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Stored exam data is inconsistent",
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrPrintNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Print not found",
		})
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Session not found",
		})
	case errors.Is(err, services.ErrSessionClosed):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Session is not open",
		})
	case errors.Is(err, services.ErrPrintAlreadySent):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Print already finalized",
		})
	case errors.Is(err, services.ErrInvalidQuestion):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Question index outside the print",
		})
	case errors.Is(err, services.ErrTooManyQuestions):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Exam exceeds the question limit per print",
		})
	case errors.Is(err, services.ErrNoQuestionsDrawn):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Exam has no questions to print",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
