package domain

import "errors"

var (
	// ErrInvalidLineQuantity indicates a non-positive line quantity
	ErrInvalidLineQuantity = errors.New("line quantity must be positive")

	// ErrInvalidAmount indicates a non-positive monetary amount
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrLineNotFound indicates the referenced line number does not exist
	ErrLineNotFound = errors.New("order line not found")

	// ErrNoLines indicates the document has no line items
	ErrNoLines = errors.New("document has no line items")

	// ErrOrderNotOnHold indicates a hold release on an order that is not on hold
	ErrOrderNotOnHold = errors.New("order is not on hold")

	// ErrShipmentExceedsRemaining indicates a shipment larger than what is left
	ErrShipmentExceedsRemaining = errors.New("shipment quantity exceeds remaining quantity")

	// ErrQuoteExpired indicates the quote validity window has passed
	ErrQuoteExpired = errors.New("quote has expired")

	// ErrVersionConflict indicates a concurrent modification was detected
	ErrVersionConflict = errors.New("concurrent modification detected, version conflict")
)
