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

type slotService interface {
	AvailableTimes(ctx context.Context, sessionID, date string) (*dto.AvailableTimesResponse, error)
}

type reservationService interface {
	Create(ctx context.Context, actor models.Actor, req dto.CreateReservationRequest) (*dto.CreateReservationResponse, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.ReservationDetail, error)
	ListMine(ctx context.Context, actor models.Actor, page, limit int) ([]models.ReservationDetail, *models.Pagination, error)
	Reject(ctx context.Context, actor models.Actor, id, reason string) error
	Cancel(ctx context.Context, actor models.Actor, id string) error
	ReviewEligibility(ctx context.Context, actor models.Actor, id string) (*models.ReviewEligibility, error)
}

type roomService interface {
	ForReservation(ctx context.Context, actor models.Actor, reservationID string) (*models.Room, error)
	IssuePass(ctx context.Context, actor models.Actor, reservationID string) (*models.RoomPass, error)
	VerifyPass(ctx context.Context, token string) (*models.RoomPass, error)
}

// ReservationHandler exposes slot lookup and the reservation lifecycle.
type ReservationHandler struct {
	slots        slotService
	reservations reservationService
	rooms        roomService
}

// NewReservationHandler builds a ReservationHandler.
func NewReservationHandler(slots slotService, reservations reservationService, rooms roomService) *ReservationHandler {
	return &ReservationHandler{slots: slots, reservations: reservations, rooms: rooms}
}

// AvailableTimes godoc
// @Summary List open windows of a session on a date
// @Tags Reservations
// @Produce json
// @Param id path string true "Session ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/available-times [get]
func (h *ReservationHandler) AvailableTimes(c *gin.Context) {
	var query dto.AvailableTimesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, http.StatusBadRequest, "date query parameter is required"))
		return
	}
	result, err := h.slots.AvailableTimes(c.Request.Context(), c.Param("id"), query.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Create godoc
// @Summary Hold a slot for the current mentee
// @Tags Reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateReservationRequest true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations [post]
func (h *ReservationHandler) Create(c *gin.Context) {
	var req dto.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reservation payload"))
		return
	}
	result, err := h.reservations.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListMine godoc
// @Summary List the current user's reservations
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reservations/me [get]
func (h *ReservationHandler) ListMine(c *gin.Context) {
	items, pagination, err := h.reservations.ListMine(c.Request.Context(), actorFromContext(c), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.ReservationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.NewReservationResponse(item))
	}
	response.JSON(c, http.StatusOK, out, pagination)
}

// Get godoc
// @Summary Get a reservation
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reservations/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	detail, err := h.reservations.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewReservationResponse(*detail))
}

// Cancel godoc
// @Summary Release an unpaid hold
// @Tags Reservations
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 204
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	if err := h.reservations.Cancel(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reject godoc
// @Summary Reject a pending reservation
// @Tags Reservations
// @Accept json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Param payload body dto.RejectReservationRequest true "Rejection reason"
// @Success 204
// @Router /reservations/{id}/reject [post]
func (h *ReservationHandler) Reject(c *gin.Context) {
	var req dto.RejectReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
		return
	}
	if err := h.reservations.Reject(c.Request.Context(), actorFromContext(c), c.Param("id"), req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ReviewEligibility godoc
// @Summary Check whether the current user may review a reservation
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/review-eligibility [get]
func (h *ReservationHandler) ReviewEligibility(c *gin.Context) {
	result, err := h.reservations.ReviewEligibility(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Room godoc
// @Summary Get the chat/video room of a paid reservation
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/room [get]
func (h *ReservationHandler) Room(c *gin.Context) {
	room, err := h.rooms.ForReservation(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, room)
}

// RoomPass godoc
// @Summary Issue a short-lived join token for the reservation's room
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 201 {object} response.Envelope
// @Router /reservations/{id}/room/pass [post]
func (h *ReservationHandler) RoomPass(c *gin.Context) {
	pass, err := h.rooms.IssuePass(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pass)
}

// VerifyRoomPass godoc
// @Summary Resolve a room join token
// @Tags Reservations
// @Produce json
// @Param token query string true "Join token"
// @Success 200 {object} response.Envelope
// @Router /rooms/verify [get]
func (h *ReservationHandler) VerifyRoomPass(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "token is required"))
		return
	}
	pass, err := h.rooms.VerifyPass(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pass)
}
