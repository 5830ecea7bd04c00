package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jinhwansong/konnect-back-sub000/internal/dto"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/service"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
	"github.com/jinhwansong/konnect-back-sub000/pkg/response"
)

type exportService interface {
	MentorSchedule(ctx context.Context, actor models.Actor, query dto.ScheduleExportQuery) (*service.ExportFile, error)
}

// ExportHandler streams downloadable reports.
type ExportHandler struct {
	service exportService
}

// NewExportHandler builds an ExportHandler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// MentorSchedule godoc
// @Summary Download a mentor's booked sessions
// @Tags Reservations
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param from query string true "First date (YYYY-MM-DD)"
// @Param to query string true "Last date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Param mentor_id query string false "Mentor to export (admins only)"
// @Success 200 {file} file
// @Router /exports/schedule [get]
func (h *ExportHandler) MentorSchedule(c *gin.Context) {
	var query dto.ScheduleExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.service.MentorSchedule(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("X-Export-Rows", strconv.Itoa(file.Rows))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Body)
}
