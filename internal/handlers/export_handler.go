package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/swad-platform/examprint-service/internal/services"
	"github.com/swad-platform/examprint-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExportHandler struct {
	BaseHandler
	exportService services.ExportService
}

func NewExportHandler(exportService services.ExportService, logger utils.Logger) *ExportHandler {
	return &ExportHandler{
		BaseHandler:   NewBaseHandler(logger),
		exportService: exportService,
	}
}

// ExportSessionResults streams the session's results workbook.
func (h *ExportHandler) ExportSessionResults(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid id",
		})
		return
	}

	h.LogRequest(c, "Exporting session results", "session_id", id)

	data, err := h.exportService.ExportSessionResults(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Message: "Session not found",
			})
			return
		}
		h.LogError(c, err, "Failed to export session results")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
		return
	}

	filename := fmt.Sprintf("session_%d_results.xlsx", id)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
