// Package ledger provides in-memory implementations of the sale's external
// collaborators: the token balance book, the quote funds custody and the
// liquidity venue. They back the service wiring and the lifecycle tests.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"token-launchpad/internal/sale"
)

// ErrInsufficientBalance is returned when a debit exceeds the held balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// TokenLedger is a mutex-guarded balance book for one sale's token.
type TokenLedger struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
	frozen   bool
}

// NewTokenLedger creates an empty ledger.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{balances: make(map[string]*big.Int)}
}

// CreditBalance adds tokens to a participant's balance.
func (l *TokenLedger) CreditBalance(_ context.Context, participant string, amount *big.Int) error {
	if participant == "" || amount == nil || amount.Sign() < 0 {
		return errors.New("invalid credit")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[participant]
	if !ok {
		bal = big.NewInt(0)
		l.balances[participant] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// DebitBalance removes tokens from a participant's balance. Returns
// ErrInsufficientBalance when the balance does not cover the amount.
func (l *TokenLedger) DebitBalance(_ context.Context, participant string, amount *big.Int) error {
	if participant == "" || amount == nil || amount.Sign() < 0 {
		return errors.New("invalid debit")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[participant]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}

// BalanceOf returns a copy of the participant's balance; zero when unknown.
func (l *TokenLedger) BalanceOf(_ context.Context, participant string) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, ok := l.balances[participant]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// SetTransferFrozen flips the transfer freeze flag.
func (l *TokenLedger) SetTransferFrozen(_ context.Context, frozen bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = frozen
	return nil
}

// TransferFrozen reports the freeze flag.
func (l *TokenLedger) TransferFrozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen
}

var _ sale.TokenLedger = (*TokenLedger)(nil)

// FundsCustody records project funding and refund payouts per sale.
type FundsCustody struct {
	mu       sync.RWMutex
	funding  map[string]*big.Int            // sale_id -> project funding received
	refunds  map[string]map[string]*big.Int // sale_id -> participant -> refund paid
	refunded map[string]*big.Int            // sale_id -> total refunds paid
}

// NewFundsCustody creates an empty custody.
func NewFundsCustody() *FundsCustody {
	return &FundsCustody{
		funding:  make(map[string]*big.Int),
		refunds:  make(map[string]map[string]*big.Int),
		refunded: make(map[string]*big.Int),
	}
}

// ReceiveProjectFunding books the project-funding share of a launch.
func (c *FundsCustody) ReceiveProjectFunding(_ context.Context, saleID string, amount *big.Int) error {
	if saleID == "" || amount == nil || amount.Sign() < 0 {
		return errors.New("invalid funding transfer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	total, ok := c.funding[saleID]
	if !ok {
		total = big.NewInt(0)
		c.funding[saleID] = total
	}
	total.Add(total, amount)
	return nil
}

// PayRefund books a refund payout to a participant.
func (c *FundsCustody) PayRefund(_ context.Context, saleID, participant string, amount *big.Int) error {
	if saleID == "" || participant == "" || amount == nil || amount.Sign() < 0 {
		return errors.New("invalid refund transfer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	perSale, ok := c.refunds[saleID]
	if !ok {
		perSale = make(map[string]*big.Int)
		c.refunds[saleID] = perSale
	}
	perSale[participant] = new(big.Int).Set(amount)

	total, ok := c.refunded[saleID]
	if !ok {
		total = big.NewInt(0)
		c.refunded[saleID] = total
	}
	total.Add(total, amount)
	return nil
}

// ProjectFunding returns the funding received for a sale; zero when none.
func (c *FundsCustody) ProjectFunding(saleID string) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if total, ok := c.funding[saleID]; ok {
		return new(big.Int).Set(total)
	}
	return big.NewInt(0)
}

// RefundPaid returns the refund paid to a participant; zero when none.
func (c *FundsCustody) RefundPaid(saleID, participant string) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if perSale, ok := c.refunds[saleID]; ok {
		if amount, ok := perSale[participant]; ok {
			return new(big.Int).Set(amount)
		}
	}
	return big.NewInt(0)
}

// TotalRefunded returns the sum of refunds paid for a sale.
func (c *FundsCustody) TotalRefunded(saleID string) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if total, ok := c.refunded[saleID]; ok {
		return new(big.Int).Set(total)
	}
	return big.NewInt(0)
}

var _ sale.FundsCustody = (*FundsCustody)(nil)

// LiquidityVenue records liquidity seeds and mints LP tokens 1:1 with the
// quote side, enough to observe launch provisioning in tests and demos.
type LiquidityVenue struct {
	mu    sync.RWMutex
	seeds map[string]*Seed
}

// Seed is one provisioned liquidity position.
type Seed struct {
	QuoteAmount *big.Int
	TokenAmount *big.Int
	LPTokens    *big.Int
}

// NewLiquidityVenue creates an empty venue.
func NewLiquidityVenue() *LiquidityVenue {
	return &LiquidityVenue{seeds: make(map[string]*Seed)}
}

// ProvisionLiquidity books a liquidity seed for a sale.
func (v *LiquidityVenue) ProvisionLiquidity(_ context.Context, saleID string, quoteAmount, tokenAmount *big.Int) (*big.Int, error) {
	if saleID == "" || quoteAmount == nil || tokenAmount == nil {
		return nil, errors.New("invalid liquidity seed")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.seeds[saleID]; exists {
		return nil, errors.New("liquidity already provisioned")
	}
	lp := new(big.Int).Set(quoteAmount)
	v.seeds[saleID] = &Seed{
		QuoteAmount: new(big.Int).Set(quoteAmount),
		TokenAmount: new(big.Int).Set(tokenAmount),
		LPTokens:    new(big.Int).Set(lp),
	}
	return lp, nil
}

// SeedFor returns the provisioned seed for a sale, or nil.
func (v *LiquidityVenue) SeedFor(saleID string) *Seed {
	v.mu.RLock()
	defer v.mu.RUnlock()

	seed, ok := v.seeds[saleID]
	if !ok {
		return nil
	}
	return &Seed{
		QuoteAmount: new(big.Int).Set(seed.QuoteAmount),
		TokenAmount: new(big.Int).Set(seed.TokenAmount),
		LPTokens:    new(big.Int).Set(seed.LPTokens),
	}
}

var _ sale.LiquidityVenue = (*LiquidityVenue)(nil)
