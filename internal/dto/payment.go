package dto

// ConfirmPaymentRequest is posted by the client after the processor redirect.
// OrderID is the reservation id the charge was opened for.
type ConfirmPaymentRequest struct {
	OrderID    string `json:"orderId" validate:"required"`
	PaymentKey string `json:"paymentKey" validate:"required"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
}

// RefundPaymentRequest cancels a settled charge.
type RefundPaymentRequest struct {
	PaymentKey string `json:"paymentKey" validate:"required"`
	Reason     string `json:"reason" validate:"max=200"`
}
