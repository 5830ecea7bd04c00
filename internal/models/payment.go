package models

import "time"

// PaymentStatus is the settlement state of a payment row.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Payment records one attempt to charge or refund a reservation.
type Payment struct {
	ID            string        `db:"id" json:"id"`
	ReservationID string        `db:"reservation_id" json:"reservation_id"`
	Price         int64         `db:"price" json:"price"`
	OrderID       string        `db:"order_id" json:"order_id"`
	PaymentKey    string        `db:"payment_key" json:"payment_key"`
	Status        PaymentStatus `db:"status" json:"status"`
	FailReason    *string       `db:"fail_reason" json:"fail_reason,omitempty"`
	ReceiptURL    *string       `db:"receipt_url" json:"receipt_url,omitempty"`
	ApprovedAt    *time.Time    `db:"approved_at" json:"approved_at,omitempty"`
	RefundedAt    *time.Time    `db:"refunded_at" json:"refunded_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentWithOwner joins a payment with the reservation fields refunds check.
type PaymentWithOwner struct {
	Payment
	MenteeID          string            `db:"mentee_id"`
	ReservationStatus ReservationStatus `db:"reservation_status"`
}

// Receipt is returned for a confirmed charge.
type Receipt struct {
	ReservationID string        `json:"reservation_id"`
	OrderID       string        `json:"order_id"`
	PaymentKey    string        `json:"payment_key"`
	Amount        int64         `json:"amount"`
	Status        PaymentStatus `json:"status"`
	ReceiptURL    string        `json:"receipt_url,omitempty"`
	ApprovedAt    *time.Time    `json:"approved_at,omitempty"`
	// Replayed is set when the charge had already been confirmed earlier.
	Replayed bool `json:"replayed"`
}

// ReceiptFromPayment builds a receipt from a stored payment.
func ReceiptFromPayment(p Payment, replayed bool) *Receipt {
	r := &Receipt{
		ReservationID: p.ReservationID,
		OrderID:       p.OrderID,
		PaymentKey:    p.PaymentKey,
		Amount:        p.Price,
		Status:        p.Status,
		ApprovedAt:    p.ApprovedAt,
		Replayed:      replayed,
	}
	if p.ReceiptURL != nil {
		r.ReceiptURL = *p.ReceiptURL
	}
	return r
}

// RefundResult is returned once a refund settles.
type RefundResult struct {
	ReservationID     string            `json:"reservation_id"`
	PaymentKey        string            `json:"payment_key"`
	Status            PaymentStatus     `json:"status"`
	ReservationStatus ReservationStatus `json:"reservation_status"`
	RefundedAt        time.Time         `json:"refunded_at"`
}
