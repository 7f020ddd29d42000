package sale

import "errors"

// Sale errors. All are terminal for the operation that raised them: the
// operation has no effect and nothing is retried internally.
var (
	// ErrInvalidInput is returned for zero amounts, empty participants or
	// malformed sale parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSlippageExceeded is returned when the quoted cost or refund moved
	// past the caller's bound between request and execution.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrSaleNotStarted is returned for trades before the fundraising window opens.
	ErrSaleNotStarted = errors.New("sale not started")

	// ErrSaleEnded is returned for trades after the fundraising deadline.
	ErrSaleEnded = errors.New("sale ended")

	// ErrSaleNotEnded is returned when finalizing before the deadline.
	ErrSaleNotEnded = errors.New("sale not ended")

	// ErrWrongState is returned when an operation is attempted in the wrong
	// lifecycle state, e.g. claiming a refund before the sale failed.
	ErrWrongState = errors.New("wrong sale state")

	// ErrAlreadyClaimed is returned on a second refund claim by the same participant.
	ErrAlreadyClaimed = errors.New("refund already claimed")

	// ErrExceedsRemainingSupply is returned when a buy asks for more tokens
	// than remain salable. Requests are rejected, never silently capped.
	ErrExceedsRemainingSupply = errors.New("purchase exceeds remaining sale supply")
)
