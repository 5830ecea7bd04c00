package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrSlotConflict signals that another live reservation already holds the slot.
var ErrSlotConflict = errors.New("reservation slot already held")

// ErrDuplicatePayment signals a second settled payment for one reservation.
var ErrDuplicatePayment = errors.New("reservation already has a settled payment")

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
