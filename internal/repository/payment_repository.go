package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

const (
	paymentColumns = "id, reservation_id, price, order_id, payment_key, status, fail_reason, receipt_url, approved_at, refunded_at, created_at, updated_at"

	settledPaymentIndex = "ux_payments_settled_reservation"
)

// PaymentRepository persists payment attempts.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) ext(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert stores a payment row, optionally inside a transaction.
func (r *PaymentRepository) Insert(ctx context.Context, exec sqlx.ExtContext, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	const query = `INSERT INTO payments (id, reservation_id, price, order_id, payment_key, status, fail_reason, receipt_url, approved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.ext(exec).ExecContext(ctx, query,
		p.ID,
		p.ReservationID,
		p.Price,
		p.OrderID,
		p.PaymentKey,
		p.Status,
		p.FailReason,
		p.ReceiptURL,
		p.ApprovedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, settledPaymentIndex) {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// FindSuccessByOrderID returns the settled charge for an order, if any.
func (r *PaymentRepository) FindSuccessByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 AND status = 'SUCCESS' ORDER BY created_at DESC LIMIT 1`
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, query, orderID); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByPaymentKey returns the most relevant payment for a processor key
// joined with its reservation's owner and status. Settled rows win over
// failed attempts.
func (r *PaymentRepository) FindByPaymentKey(ctx context.Context, paymentKey string) (*models.PaymentWithOwner, error) {
	const query = `SELECT p.id, p.reservation_id, p.price, p.order_id, p.payment_key, p.status, p.fail_reason, p.receipt_url, p.approved_at, p.refunded_at, p.created_at, p.updated_at,
		r.mentee_id, r.status AS reservation_status
		FROM payments p JOIN reservations r ON r.id = p.reservation_id
		WHERE p.payment_key = $1
		ORDER BY CASE p.status WHEN 'SUCCESS' THEN 0 WHEN 'REFUNDED' THEN 1 ELSE 2 END, p.created_at DESC
		LIMIT 1`
	var p models.PaymentWithOwner
	if err := r.db.GetContext(ctx, &p, query, paymentKey); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByReservation returns every attempt recorded for a reservation.
func (r *PaymentRepository) ListByReservation(ctx context.Context, reservationID string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reservation_id = $1 ORDER BY created_at ASC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, reservationID); err != nil {
		return nil, fmt.Errorf("list payments by reservation: %w", err)
	}
	return payments, nil
}

// MarkRefunded moves a SUCCESS payment to REFUNDED.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	const query = `UPDATE payments SET status = 'REFUNDED', refunded_at = $2, updated_at = $2 WHERE id = $1 AND status = 'SUCCESS'`
	res, err := r.ext(exec).ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark payment refunded: %w", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
