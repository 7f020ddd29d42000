package sale

import (
	"context"
	"math/big"
)

// TokenLedger is the external token balance book. The controller credits
// purchases, debits sells and refund locks, and lifts the transfer freeze
// at launch. Implementations must reject debits above the held balance.
type TokenLedger interface {
	CreditBalance(ctx context.Context, participant string, amount *big.Int) error
	DebitBalance(ctx context.Context, participant string, amount *big.Int) error
	BalanceOf(ctx context.Context, participant string) (*big.Int, error)
	SetTransferFrozen(ctx context.Context, frozen bool) error
}

// FundsCustody receives the project-funding share at launch and pays out
// refunds after a failed raise.
type FundsCustody interface {
	ReceiveProjectFunding(ctx context.Context, saleID string, amount *big.Int) error
	PayRefund(ctx context.Context, saleID, participant string, amount *big.Int) error
}

// LiquidityVenue seeds a secondary market with the LP share at launch.
// Optional: a sale with no venue launches without seeding.
type LiquidityVenue interface {
	ProvisionLiquidity(ctx context.Context, saleID string, quoteAmount, tokenAmount *big.Int) (lpTokens *big.Int, err error)
}

// Clock supplies wall-clock seconds since epoch. The fundraising deadline
/// is a plain timestamp comparison: transitions are evaluated lazily on the
// next call that touches the sale, never scheduled.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

// Now implements Clock.
func (f ClockFunc) Now() int64 { return f() }
