package domain

import "errors"

var (
	// ErrInvalidQuantity indicates a non-positive quantity was supplied
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInsufficientStock indicates not enough available stock for the operation
	ErrInsufficientStock = errors.New("insufficient stock available")

	// ErrNegativeStock indicates the operation would drive on-hand below zero
	ErrNegativeStock = errors.New("operation would result in negative stock")

	// ErrStockLevelInactive indicates the stock level row has been deactivated
	ErrStockLevelInactive = errors.New("stock level is inactive")

	// ErrMovementAlreadyReversed indicates the movement has already been reversed
	ErrMovementAlreadyReversed = errors.New("movement has already been reversed")

	// ErrMovementNotReversible indicates the movement type cannot be reversed
	ErrMovementNotReversible = errors.New("movement cannot be reversed")

	// ErrReversalWindowExpired indicates the movement is older than the reversal window
	ErrReversalWindowExpired = errors.New("reversal window has expired for this movement")

	// ErrReservationNotFound indicates the reservation does not exist
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationNotActive indicates the reservation is not in active state
	ErrReservationNotActive = errors.New("reservation is not active")

	// ErrVersionConflict indicates a concurrent modification was detected
	ErrVersionConflict = errors.New("concurrent modification detected, version conflict")
)
