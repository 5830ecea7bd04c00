package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/dto"
	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/repository"
	appErrors "github.com/jinhwansong/konnect-back-sub000/pkg/errors"
	"github.com/jinhwansong/konnect-back-sub000/pkg/payment"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// PaymentProcessor is the external charge API.
type PaymentProcessor interface {
	Confirm(ctx context.Context, req payment.ConfirmRequest) (*payment.ConfirmResult, error)
	Cancel(ctx context.Context, paymentKey, reason string) (*payment.CancelResult, error)
}

type paymentReservationStore interface {
	FindByID(ctx context.Context, id string) (*models.ReservationDetail, error)
	MarkConfirmed(ctx context.Context, exec sqlx.ExtContext, id string, paidAt time.Time) (bool, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.ReservationStatus, next models.ReservationStatus) (bool, error)
}

type paymentStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, p *models.Payment) error
	FindSuccessByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	FindByPaymentKey(ctx context.Context, paymentKey string) (*models.PaymentWithOwner, error)
	MarkRefunded(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error)
}

const (
	paymentOpConfirm = "confirm"
	paymentOpRefund  = "refund"

	defaultRefundReason = "customer requested refund"
	compensationReason  = "reservation no longer payable"
)

// PaymentService ties processor outcomes to reservation transitions.
type PaymentService struct {
	reservations paymentReservationStore
	payments     paymentStore
	processor    PaymentProcessor
	tx           txProvider
	events       EventEmitter
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewPaymentService instantiates PaymentService.
func NewPaymentService(
	reservations paymentReservationStore,
	payments paymentStore,
	processor PaymentProcessor,
	tx txProvider,
	events EventEmitter,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	now func() time.Time,
) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopEmitter{}
	}
	if now == nil {
		now = time.Now
	}
	return &PaymentService{
		reservations: reservations,
		payments:     payments,
		processor:    processor,
		tx:           tx,
		events:       events,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		now:          now,
	}
}

// Confirm settles the charge for a PENDING reservation. The order id is the
// reservation id. A charge already settled with the same key is replayed
// without contacting the processor.
func (s *PaymentService) Confirm(ctx context.Context, actor models.Actor, req dto.ConfirmPaymentRequest) (*models.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	detail, err := s.reservations.FindByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "no reservation for this order")
		}
		return nil, appErrors.Internal(err, "failed to load reservation")
	}
	if detail.MenteeID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reservation belongs to another user")
	}

	settled, err := s.payments.FindSuccessByOrderID(ctx, req.OrderID)
	switch {
	case err == nil:
		if settled.PaymentKey == req.PaymentKey && settled.Price == req.Amount {
			s.metrics.RecordPayment(paymentOpConfirm, "replayed")
			return models.ReceiptFromPayment(*settled, true), nil
		}
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "reservation already confirmed")
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to check existing payment")
	}

	now := s.now()
	if detail.Status != models.ReservationPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("reservation is %s and cannot be paid", detail.Status))
	}
	if detail.HoldExpired(now) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "reservation hold has expired")
	}
	if req.Amount != detail.Price {
		return nil, appErrors.ErrAmountMismatch
	}

	start := time.Now()
	result, err := s.processor.Confirm(ctx, payment.ConfirmRequest{PaymentKey: req.PaymentKey, OrderID: req.OrderID, Amount: req.Amount})
	s.metrics.ObserveProcessorCall(paymentOpConfirm, time.Since(start))
	if err != nil {
		s.recordFailure(ctx, detail, req, err)
		s.metrics.RecordPayment(paymentOpConfirm, "failed")
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentFailed.Code, appErrors.ErrPaymentFailed.Status, "payment was not approved")
	}

	approvedAt := result.ApprovedAt
	if approvedAt.IsZero() {
		approvedAt = now
	}
	approvedAt = approvedAt.UTC()
	p := &models.Payment{
		ReservationID: detail.ID,
		Price:         req.Amount,
		OrderID:       req.OrderID,
		PaymentKey:    req.PaymentKey,
		Status:        models.PaymentSuccess,
		ApprovedAt:    &approvedAt,
	}
	if result.ReceiptURL != "" {
		receiptURL := result.ReceiptURL
		p.ReceiptURL = &receiptURL
	}

	if err := s.settle(ctx, p, now.UTC()); err != nil {
		return s.handleSettleFailure(ctx, req, err)
	}

	s.metrics.RecordPayment(paymentOpConfirm, "success")
	s.metrics.RecordTransition(models.ReservationConfirmed, "payment", 1)
	s.logger.Info("reservation confirmed",
		zap.String("reservation_id", detail.ID),
		zap.String("payment_id", p.ID),
		zap.Int64("amount", p.Price),
	)
	s.events.Emit(ctx, newReservationEvent(models.EventReservationConfirmed, detail.ID, map[string]string{
		"session_id": detail.SessionID,
		"mentor_id":  detail.MentorID,
		"mentee_id":  detail.MenteeID,
		"date":       detail.DateString(),
		"start_time": detail.StartTime,
		"end_time":   detail.EndTime,
	}))
	return models.ReceiptFromPayment(*p, false), nil
}

var errNoLongerPending = errors.New("reservation no longer pending")

// settle writes the SUCCESS payment and the CONFIRMED transition in one transaction.
func (s *PaymentService) settle(ctx context.Context, p *models.Payment, paidAt time.Time) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin confirm payment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.payments.Insert(ctx, tx, p); err != nil {
		return err
	}
	var ok bool
	ok, err = s.reservations.MarkConfirmed(ctx, tx, p.ReservationID, paidAt)
	if err != nil {
		return err
	}
	if !ok {
		err = errNoLongerPending
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit confirm payment: %w", err)
	}
	return nil
}

func (s *PaymentService) handleSettleFailure(ctx context.Context, req dto.ConfirmPaymentRequest, err error) (*models.Receipt, error) {
	if errors.Is(err, repository.ErrDuplicatePayment) {
		if settled, findErr := s.payments.FindSuccessByOrderID(ctx, req.OrderID); findErr == nil && settled.PaymentKey == req.PaymentKey {
			s.metrics.RecordPayment(paymentOpConfirm, "replayed")
			return models.ReceiptFromPayment(*settled, true), nil
		}
		s.compensate(ctx, req.PaymentKey, req.OrderID)
		s.metrics.RecordPayment(paymentOpConfirm, "conflict")
		return nil, appErrors.Clone(appErrors.ErrConflict, "reservation was paid by another request")
	}
	if errors.Is(err, errNoLongerPending) {
		s.compensate(ctx, req.PaymentKey, req.OrderID)
		s.metrics.RecordPayment(paymentOpConfirm, "conflict")
		return nil, appErrors.Clone(appErrors.ErrConflict, "reservation is no longer pending")
	}
	s.compensate(ctx, req.PaymentKey, req.OrderID)
	s.metrics.RecordPayment(paymentOpConfirm, "error")
	return nil, appErrors.Internal(err, "failed to record payment")
}

// compensate voids a charge the processor approved but the store could not settle.
func (s *PaymentService) compensate(ctx context.Context, paymentKey, orderID string) {
	if _, err := s.processor.Cancel(ctx, paymentKey, compensationReason); err != nil {
		s.logger.Error("failed to void unsettled charge; manual reconciliation required",
			zap.String("order_id", orderID),
			zap.String("payment_key", paymentKey),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("voided unsettled charge", zap.String("order_id", orderID), zap.String("payment_key", paymentKey))
}

func (s *PaymentService) recordFailure(ctx context.Context, detail *models.ReservationDetail, req dto.ConfirmPaymentRequest, cause error) {
	reason := failureReason(cause)
	p := &models.Payment{
		ReservationID: detail.ID,
		Price:         req.Amount,
		OrderID:       req.OrderID,
		PaymentKey:    req.PaymentKey,
		Status:        models.PaymentFailed,
		FailReason:    &reason,
	}
	if err := s.payments.Insert(ctx, nil, p); err != nil {
		s.logger.Error("failed to record failed payment", zap.String("order_id", req.OrderID), zap.Error(err))
		return
	}
	s.logger.Warn("payment confirmation failed",
		zap.String("reservation_id", detail.ID),
		zap.String("payment_id", p.ID),
		zap.String("reason", reason),
	)
}

func failureReason(err error) string {
	var perr *payment.ProcessorError
	if errors.As(err, &perr) {
		return fmt.Sprintf("%s: %s", perr.Code, perr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT: payment processor did not answer in time"
	}
	return err.Error()
}

// Refund cancels a settled charge and the reservation it paid for.
func (s *PaymentService) Refund(ctx context.Context, actor models.Actor, req dto.RefundPaymentRequest) (*models.RefundResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refund payload")
	}

	p, err := s.payments.FindByPaymentKey(ctx, req.PaymentKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Internal(err, "failed to load payment")
	}
	if p.MenteeID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "payment belongs to another user")
	}
	switch p.ReservationStatus {
	case models.ReservationProgress, models.ReservationCompleted:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "sessions in progress or completed cannot be refunded")
	}
	if p.Status != models.PaymentSuccess {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("payment is %s and cannot be refunded", p.Status))
	}
	if p.ReservationStatus != models.ReservationConfirmed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("reservation is %s and cannot be refunded", p.ReservationStatus))
	}

	reason := req.Reason
	if reason == "" {
		reason = defaultRefundReason
	}
	start := time.Now()
	_, err = s.processor.Cancel(ctx, p.PaymentKey, reason)
	s.metrics.ObserveProcessorCall(paymentOpRefund, time.Since(start))
	if err != nil {
		s.metrics.RecordPayment(paymentOpRefund, "failed")
		s.logger.Warn("refund rejected by processor", zap.String("payment_id", p.ID), zap.String("reason", failureReason(err)))
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentFailed.Code, appErrors.ErrPaymentFailed.Status, "refund was not accepted")
	}

	refundedAt := s.now().UTC()
	if err := s.refund(ctx, p, refundedAt); err != nil {
		s.metrics.RecordPayment(paymentOpRefund, "error")
		s.logger.Error("refund accepted by processor but not recorded; manual reconciliation required",
			zap.String("payment_id", p.ID),
			zap.String("reservation_id", p.ReservationID),
			zap.Error(err),
		)
		if errors.Is(err, errRefundRace) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "reservation changed during refund")
		}
		return nil, appErrors.Internal(err, "failed to record refund")
	}

	s.metrics.RecordPayment(paymentOpRefund, "success")
	s.metrics.RecordTransition(models.ReservationCancelled, "refund", 1)
	s.logger.Info("reservation refunded", zap.String("reservation_id", p.ReservationID), zap.String("payment_id", p.ID))
	s.events.Emit(ctx, newReservationEvent(models.EventReservationRefunded, p.ReservationID, map[string]string{
		"payment_key": p.PaymentKey,
		"mentee_id":   p.MenteeID,
	}))
	return &models.RefundResult{
		ReservationID:     p.ReservationID,
		PaymentKey:        p.PaymentKey,
		Status:            models.PaymentRefunded,
		ReservationStatus: models.ReservationCancelled,
		RefundedAt:        refundedAt,
	}, nil
}

var errRefundRace = errors.New("payment or reservation changed during refund")

// refund writes the REFUNDED payment and the CANCELLED transition in one transaction.
func (s *PaymentService) refund(ctx context.Context, p *models.PaymentWithOwner, at time.Time) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refund: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var ok bool
	if ok, err = s.payments.MarkRefunded(ctx, tx, p.ID, at); err != nil {
		return err
	}
	if !ok {
		err = errRefundRace
		return err
	}
	if ok, err = s.reservations.UpdateStatus(ctx, tx, p.ReservationID, []models.ReservationStatus{models.ReservationConfirmed}, models.ReservationCancelled); err != nil {
		return err
	}
	if !ok {
		err = errRefundRace
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit refund: %w", err)
	}
	return nil
}
