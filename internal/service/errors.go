package service

import "errors"

// Sentinel errors shared across services. Handlers map these to HTTP status
// codes; everything else is treated as an internal error.
var (
	ErrNotFound            = errors.New("not found")
	ErrItemInactive        = errors.New("referenced item is inactive")
	ErrNonPositiveQuantity = errors.New("quantity must be greater than zero")

	// ErrStockShortfall is returned only in strict stock mode; the default
	// policy records the shortage and lets stock go negative.
	ErrStockShortfall = errors.New("deduction would drive stock negative")

	// ErrTransactionInProgress rejects a re-delivered production event whose
	// first delivery has not reached a terminal state yet.
	ErrTransactionInProgress = errors.New("production transaction is still being applied")
)
