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

type paymentService interface {
	Confirm(ctx context.Context, actor models.Actor, req dto.ConfirmPaymentRequest) (*models.Receipt, error)
	Refund(ctx context.Context, actor models.Actor, req dto.RefundPaymentRequest) (*models.RefundResult, error)
}

// PaymentHandler bridges the payment processor callbacks.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler builds a PaymentHandler.
func NewPaymentHandler(service paymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// Confirm godoc
// @Summary Confirm a charge and the reservation it pays for
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ConfirmPaymentRequest true "Processor redirect values"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /payments/confirm [post]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	receipt, err := h.service.Confirm(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, receipt)
}

// Refund godoc
// @Summary Refund a settled charge and cancel its reservation
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.RefundPaymentRequest true "Refund request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /payments/refund [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	var req dto.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refund payload"))
		return
	}
	result, err := h.service.Refund(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
