package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinhwansong/konnect-back-sub000/internal/dto"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
	"github.com/jinhwansong/konnect-back-sub000/pkg/response"
)

type availabilityService interface {
	List(ctx context.Context, mentorID, day string) ([]models.AvailabilityWindow, error)
	Create(ctx context.Context, actor models.Actor, req dto.UpsertAvailabilityRequest) (*models.AvailabilityWindow, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpsertAvailabilityRequest) (*models.AvailabilityWindow, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
}

// AvailabilityHandler manages mentors' weekly windows.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler builds an AvailabilityHandler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// List godoc
// @Summary List a mentor's availability windows
// @Tags Availability
// @Produce json
// @Param id path string true "Mentor ID"
// @Param day query string false "Day of week (MONDAY..SUNDAY)"
// @Success 200 {object} response.Envelope
// @Router /mentors/{id}/availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	windows, err := h.service.List(c.Request.Context(), c.Param("id"), c.Query("day"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, windows)
}

// Create godoc
// @Summary Declare a weekly window
// @Tags Availability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.UpsertAvailabilityRequest true "Window"
// @Success 201 {object} response.Envelope
// @Router /availability [post]
func (h *AvailabilityHandler) Create(c *gin.Context) {
	var req dto.UpsertAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	window, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, window)
}

// Update godoc
// @Summary Edit a weekly window
// @Tags Availability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Window ID"
// @Param payload body dto.UpsertAvailabilityRequest true "Window"
// @Success 200 {object} response.Envelope
// @Router /availability/{id} [put]
func (h *AvailabilityHandler) Update(c *gin.Context) {
	var req dto.UpsertAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	window, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, window)
}

// Delete godoc
// @Summary Remove a weekly window
// @Tags Availability
// @Security BearerAuth
// @Param id path string true "Window ID"
// @Success 204
// @Router /availability/{id} [delete]
func (h *AvailabilityHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
