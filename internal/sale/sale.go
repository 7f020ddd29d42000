// Package sale implements the fundraise lifecycle controller: it owns the
// mutable state of one primary sale, prices every trade through the curve
// package and drives the Active -> Launched / Active -> Failed transitions
// with their pro-rata refund protocol.
//
// Every mutating operation holds the sale's mutex for its full duration, so
// each call observes a fully-updated prior state and either completes in
// full or has no effect. Amounts are big integers in base units throughout;
// arithmetic cannot silently wrap.
package sale

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"token-launchpad/internal/curve"
)

// Status is the lifecycle state of a sale. Transitions are forward-only:
// Active -> Launched or Active -> Failed, nothing leaves a terminal state.
type Status int

const (
	StatusActive Status = iota
	StatusLaunched
	StatusFailed
)

// String returns the storage representation of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusLaunched:
		return "LAUNCHED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Basis-point denominator shared by fees, the minimum-raise ratio and the
// LP share.
const bpsDenom = 10000

// Params are the immutable parameters of one sale.
type Params struct {
	TokenSymbol string
	Creator     string
	TargetRaise *big.Int // quote base units
	AlphaBps    uint32   // project ownership ratio, basis points of total supply
	StartTime   int64    // unix seconds, inclusive
	EndTime     int64    // unix seconds, exclusive
	Decimals    curve.DecimalConfig

	BuyFeeBps   uint32 // origination fee on top of the curve cost
	SellFeeBps  uint32 // exit fee deducted from the curve refund
	MinRaiseBps uint32 // minimum sold fraction of salable supply to launch at deadline
	LPShareBps  uint32 // share of collected quote routed to liquidity at launch
}

func (p Params) validate() error {
	if p.TokenSymbol == "" || p.Creator == "" {
		return fmt.Errorf("%w: token symbol and creator are required", ErrInvalidInput)
	}
	if p.EndTime <= p.StartTime {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}
	if p.BuyFeeBps >= bpsDenom || p.SellFeeBps >= bpsDenom {
		return fmt.Errorf("%w: fee out of range", ErrInvalidInput)
	}
	if p.MinRaiseBps > bpsDenom || p.LPShareBps > bpsDenom {
		return fmt.Errorf("%w: ratio out of range", ErrInvalidInput)
	}
	return nil
}

// Deps are the external collaborators of a sale. Venue and Sink are
// optional; Clock defaults to wall time.
type Deps struct {
	Ledger  TokenLedger
	Custody FundsCustody
	Venue   LiquidityVenue
	Clock   Clock
	Sink    EventSink
}

// TradeResult reports an executed buy or sell. QuoteAmount is the raw curve
// amount; Fee is charged on top of it for buys and deducted from it for
// sells.
type TradeResult struct {
	SaleID      string
	Participant string
	Side        string
	TokenAmount *big.Int
	QuoteAmount *big.Int
	FeeAmount   *big.Int
	Price       decimal.Decimal // post-trade spot price
	Launched    bool            // true when this buy completed the raise
	Timestamp   int64           // unix seconds
}

// Snapshot is a point-in-time read of the sale for APIs and records.
type Snapshot struct {
	ID             string
	Params         Params
	Status         Status
	TotalSupply    *big.Int
	SalableSupply  *big.Int
	ReservedSupply *big.Int
	SoldAmount     *big.Int
	QuoteCollected *big.Int
	FeeCollected   *big.Int
	RefundRate     *big.Int
	Reserves       *curve.Reserves
	Price          decimal.Decimal
}

// Sale is the lifecycle controller for one fundraise.
type Sale struct {
	mu sync.Mutex

	id     string
	params Params
	alloc  *curve.SupplyAllocation

	reserves       *curve.Reserves
	status         Status
	soldAmount     *big.Int
	quoteCollected *big.Int // curve amounts only, fees excluded
	feeCollected   *big.Int
	refundRate     *big.Int // quote per token, scaled by tokenUnit; fixed at failure
	claimed        map[string]bool

	ledger  TokenLedger
	custody FundsCustody
	venue   LiquidityVenue
	clock   Clock
	sink    EventSink
}

// New sizes the token supply for the params, initializes the virtual
// reserves and freezes ledger transfers for the duration of the sale.
func New(ctx context.Context, id string, params Params, deps Deps) (*Sale, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty sale id", ErrInvalidInput)
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if deps.Ledger == nil || deps.Custody == nil {
		return nil, fmt.Errorf("%w: ledger and custody are required", ErrInvalidInput)
	}

	alloc, err := curve.CalculateTotalSupply(params.TargetRaise, params.AlphaBps, params.Decimals)
	if err != nil {
		return nil, err
	}
	reserves, err := curve.Initialize(alloc.SalableSupply, params.Decimals)
	if err != nil {
		return nil, err
	}

	clock := deps.Clock
	if clock == nil {
		clock = ClockFunc(func() int64 { return time.Now().Unix() })
	}

	s := &Sale{
		id:             id,
		params:         params,
		alloc:          alloc,
		reserves:       reserves,
		status:         StatusActive,
		soldAmount:     big.NewInt(0),
		quoteCollected: big.NewInt(0),
		feeCollected:   big.NewInt(0),
		refundRate:     big.NewInt(0),
		claimed:        make(map[string]bool),
		ledger:         deps.Ledger,
		custody:        deps.Custody,
		venue:          deps.Venue,
		clock:          clock,
		sink:           deps.Sink,
	}

	// Tokens are non-transferable until launch lifts the freeze.
	if err := s.ledger.SetTransferFrozen(ctx, true); err != nil {
		return nil, fmt.Errorf("freeze ledger transfers: %w", err)
	}

	s.emit(Event{
		Type:       EventSaleCreated,
		SaleID:     id,
		Status:     StatusActive.String(),
		SoldAmount: big.NewInt(0),
		Price:      curve.PriceDecimal(reserves, params.Decimals),
		Timestamp:  clock.Now(),
	})
	return s, nil
}

// ID returns the sale identifier.
func (s *Sale) ID() string { return s.id }

// Params returns the immutable sale parameters.
func (s *Sale) Params() Params { return s.params }

// Status returns the current lifecycle state.
func (s *Sale) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns a consistent copy of the sale state.
func (s *Sale) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:             s.id,
		Params:         s.params,
		Status:         s.status,
		TotalSupply:    new(big.Int).Set(s.alloc.TotalSupply),
		SalableSupply:  new(big.Int).Set(s.alloc.SalableSupply),
		ReservedSupply: new(big.Int).Set(s.alloc.ReservedSupply),
		SoldAmount:     new(big.Int).Set(s.soldAmount),
		QuoteCollected: new(big.Int).Set(s.quoteCollected),
		FeeCollected:   new(big.Int).Set(s.feeCollected),
		RefundRate:     new(big.Int).Set(s.refundRate),
		Reserves:       s.reserves.Clone(),
		Price:          curve.PriceDecimal(s.reserves, s.params.Decimals),
	}
}

// QuoteBuy prices an exact-output buy without executing it. Returns the
// curve cost and the origination fee separately.
func (s *Sale) QuoteBuy(tokenAmount *big.Int) (cost, fee *big.Int, err error) {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: token amount must be positive", ErrInvalidInput)
	}
	s.mu.Lock()
	snapshot := s.reserves.Clone()
	s.mu.Unlock()

	cost, err = curve.QuoteIn(snapshot, tokenAmount)
	if err != nil {
		return nil, nil, err
	}
	return cost, feeOn(cost, s.params.BuyFeeBps), nil
}

// QuoteSell prices an exact-input sell without executing it. Returns the
// curve refund and the exit fee separately.
func (s *Sale) QuoteSell(tokenAmount *big.Int) (refund, fee *big.Int, err error) {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: token amount must be positive", ErrInvalidInput)
	}
	s.mu.Lock()
	snapshot := s.reserves.Clone()
	s.mu.Unlock()

	refund, err = curve.QuoteOut(snapshot, tokenAmount)
	if err != nil {
		return nil, nil, err
	}
	return refund, feeOn(refund, s.params.SellFeeBps), nil
}

// Price returns the current spot price in quote base units per whole token.
func (s *Sale) Price() (*big.Int, error) {
	s.mu.Lock()
	snapshot := s.reserves.Clone()
	s.mu.Unlock()
	return curve.CurrentPrice(snapshot, s.params.Decimals)
}

// Buy purchases an exact token amount for at most maxQuoteCost (curve cost
// plus origination fee). A request beyond the remaining salable supply is
// rejected. The buy that sells out the allocation launches the sale.
func (s *Sale) Buy(ctx context.Context, buyer string, tokenAmount, maxQuoteCost *big.Int) (*TradeResult, error) {
	if buyer == "" {
		return nil, fmt.Errorf("%w: empty buyer", ErrInvalidInput)
	}
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: token amount must be positive", ErrInvalidInput)
	}
	if maxQuoteCost == nil || maxQuoteCost.Sign() <= 0 {
		return nil, fmt.Errorf("%w: max quote cost must be positive", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if err := s.requireActiveWindow(now); err != nil {
		return nil, err
	}

	remaining := new(big.Int).Sub(s.alloc.SalableSupply, s.soldAmount)
	if tokenAmount.Cmp(remaining) > 0 {
		return nil, ErrExceedsRemainingSupply
	}

	cost, err := curve.QuoteIn(s.reserves, tokenAmount)
	if err != nil {
		return nil, err
	}
	fee := feeOn(cost, s.params.BuyFeeBps)
	total := new(big.Int).Add(cost, fee)
	if total.Cmp(maxQuoteCost) > 0 {
		return nil, fmt.Errorf("%w: cost %s above bound %s", ErrSlippageExceeded, total, maxQuoteCost)
	}

	if err := s.ledger.CreditBalance(ctx, buyer, tokenAmount); err != nil {
		return nil, fmt.Errorf("credit buyer: %w", err)
	}

	s.soldAmount.Add(s.soldAmount, tokenAmount)
	s.quoteCollected.Add(s.quoteCollected, cost)
	s.feeCollected.Add(s.feeCollected, fee)
	// Only the raw swap amounts flow into the reserves; the fee sits outside
	// the curve.
	curve.ApplyDeltas(s.reserves, cost, new(big.Int).Neg(tokenAmount))

	res := &TradeResult{
		SaleID:      s.id,
		Participant: buyer,
		Side:        SideBuy,
		TokenAmount: new(big.Int).Set(tokenAmount),
		QuoteAmount: cost,
		FeeAmount:   fee,
		Price:       curve.PriceDecimal(s.reserves, s.params.Decimals),
		Timestamp:   now,
	}
	s.emit(Event{
		Type:        EventTradeExecuted,
		SaleID:      s.id,
		Participant: buyer,
		Side:        SideBuy,
		TokenAmount: res.TokenAmount,
		QuoteAmount: cost,
		FeeAmount:   fee,
		Price:       res.Price,
		SoldAmount:  new(big.Int).Set(s.soldAmount),
		Status:      s.status.String(),
		Timestamp:   now,
	})

	var launchErr error
	if s.soldAmount.Cmp(s.alloc.SalableSupply) == 0 {
		res.Launched = true
		launchErr = s.launchLocked(ctx, now)
	}
	return res, launchErr
}

// Sell returns an exact token amount to the pool for at least minQuoteOut
// (curve refund minus exit fee). Sold-back tokens are not burned: they
// remain purchasable.
func (s *Sale) Sell(ctx context.Context, seller string, tokenAmount, minQuoteOut *big.Int) (*TradeResult, error) {
	if seller == "" {
		return nil, fmt.Errorf("%w: empty seller", ErrInvalidInput)
	}
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: token amount must be positive", ErrInvalidInput)
	}
	if minQuoteOut == nil || minQuoteOut.Sign() < 0 {
		return nil, fmt.Errorf("%w: min quote out must be non-negative", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if err := s.requireActiveWindow(now); err != nil {
		return nil, err
	}
	if tokenAmount.Cmp(s.soldAmount) > 0 {
		return nil, fmt.Errorf("%w: sell amount above sold amount", ErrInvalidInput)
	}

	gross, err := curve.QuoteOut(s.reserves, tokenAmount)
	if err != nil {
		return nil, err
	}
	fee := feeOn(gross, s.params.SellFeeBps)
	net := new(big.Int).Sub(gross, fee)
	if net.Sign() < 0 {
		net.SetInt64(0)
	}
	if net.Cmp(minQuoteOut) < 0 {
		return nil, fmt.Errorf("%w: refund %s below bound %s", ErrSlippageExceeded, net, minQuoteOut)
	}

	if err := s.ledger.DebitBalance(ctx, seller, tokenAmount); err != nil {
		return nil, fmt.Errorf("debit seller: %w", err)
	}

	s.soldAmount.Sub(s.soldAmount, tokenAmount)
	s.quoteCollected.Sub(s.quoteCollected, gross)
	s.feeCollected.Add(s.feeCollected, fee)
	curve.ApplyDeltas(s.reserves, new(big.Int).Neg(gross), tokenAmount)

	res := &TradeResult{
		SaleID:      s.id,
		Participant: seller,
		Side:        SideSell,
		TokenAmount: new(big.Int).Set(tokenAmount),
		QuoteAmount: gross,
		FeeAmount:   fee,
		Price:       curve.PriceDecimal(s.reserves, s.params.Decimals),
		Timestamp:   now,
	}
	s.emit(Event{
		Type:        EventTradeExecuted,
		SaleID:      s.id,
		Participant: seller,
		Side:        SideSell,
		TokenAmount: res.TokenAmount,
		QuoteAmount: gross,
		FeeAmount:   fee,
		Price:       res.Price,
		SoldAmount:  new(big.Int).Set(s.soldAmount),
		Status:      s.status.String(),
		Timestamp:   now,
	})
	return res, nil
}

// Finalize settles a sale whose deadline has passed: it launches when the
// minimum raise was met and fails the sale otherwise. Callable by anyone;
// idempotence is not offered — a settled sale reports ErrWrongState.
func (s *Sale) Finalize(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return s.status, fmt.Errorf("%w: sale is %s", ErrWrongState, s.status)
	}
	now := s.clock.Now()
	if now < s.params.EndTime {
		return s.status, fmt.Errorf("%w: deadline not reached", ErrSaleNotEnded)
	}

	minRaise := new(big.Int).Mul(s.alloc.SalableSupply, big.NewInt(int64(s.params.MinRaiseBps)))
	minRaise.Div(minRaise, big.NewInt(bpsDenom))

	if s.soldAmount.Cmp(minRaise) >= 0 && s.soldAmount.Sign() > 0 {
		return StatusLaunched, s.launchLocked(ctx, now)
	}

	s.failLocked(now)
	return StatusFailed, nil
}

// ClaimRefund pays a failed-sale participant their pro-rata share of the
// collected quote and locks their tokens into the sale, removing them from
// circulation without a formal burn. One claim per participant.
func (s *Sale) ClaimRefund(ctx context.Context, participant string) (*big.Int, error) {
	if participant == "" {
		return nil, fmt.Errorf("%w: empty participant", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusFailed {
		return nil, fmt.Errorf("%w: sale is %s, refunds require FAILED", ErrWrongState, s.status)
	}
	if s.claimed[participant] {
		return nil, ErrAlreadyClaimed
	}

	balance, err := s.ledger.BalanceOf(ctx, participant)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("%w: no balance to refund", ErrInvalidInput)
	}

	refund := new(big.Int).Mul(balance, s.refundRate)
	refund.Div(refund, s.params.Decimals.TokenUnit)

	// Pay first: a custody failure must leave the claim open.
	if err := s.custody.PayRefund(ctx, s.id, participant, refund); err != nil {
		return nil, fmt.Errorf("pay refund: %w", err)
	}
	if err := s.ledger.DebitBalance(ctx, participant, balance); err != nil {
		return nil, fmt.Errorf("lock refunded tokens: %w", err)
	}
	s.claimed[participant] = true

	s.emit(Event{
		Type:        EventRefundClaimed,
		SaleID:      s.id,
		Participant: participant,
		TokenAmount: balance,
		QuoteAmount: new(big.Int).Set(refund),
		Status:      s.status.String(),
		SoldAmount:  new(big.Int).Set(s.soldAmount),
		Timestamp:   s.clock.Now(),
	})
	return refund, nil
}

// requireActiveWindow gates trades to the Active state inside the
// fundraising window. Callers hold the lock.
func (s *Sale) requireActiveWindow(now int64) error {
	if s.status != StatusActive {
		return fmt.Errorf("%w: sale is %s", ErrWrongState, s.status)
	}
	if now < s.params.StartTime {
		return ErrSaleNotStarted
	}
	if now >= s.params.EndTime {
		return ErrSaleEnded
	}
	return nil
}

// launchLocked commits the Launched transition, splits the collected quote
// into LP and project shares, lifts the ledger transfer freeze and seeds
// the liquidity venue when one is configured. The transition itself is
// committed before the collaborator calls: a custody or venue error
// surfaces to the caller but the sale stays Launched (see DESIGN.md).
func (s *Sale) launchLocked(ctx context.Context, now int64) error {
	s.status = StatusLaunched

	lpQuote := new(big.Int).Mul(s.quoteCollected, big.NewInt(int64(s.params.LPShareBps)))
	lpQuote.Div(lpQuote, big.NewInt(bpsDenom))
	projectQuote := new(big.Int).Sub(s.quoteCollected, lpQuote)

	s.emit(Event{
		Type:        EventSaleLaunched,
		SaleID:      s.id,
		QuoteAmount: new(big.Int).Set(s.quoteCollected),
		SoldAmount:  new(big.Int).Set(s.soldAmount),
		Price:       curve.PriceDecimal(s.reserves, s.params.Decimals),
		Status:      StatusLaunched.String(),
		Timestamp:   now,
	})

	if err := s.ledger.SetTransferFrozen(ctx, false); err != nil {
		return fmt.Errorf("unfreeze ledger transfers: %w", err)
	}
	if err := s.custody.ReceiveProjectFunding(ctx, s.id, projectQuote); err != nil {
		return fmt.Errorf("transfer project funding: %w", err)
	}

	if s.venue != nil && lpQuote.Sign() > 0 {
		// Seed the venue at the final curve price: tokens = lpQuote / price.
		price, err := curve.CurrentPrice(s.reserves, s.params.Decimals)
		if err != nil {
			return fmt.Errorf("price liquidity seed: %w", err)
		}
		lpTokens := new(big.Int).Mul(lpQuote, s.params.Decimals.TokenUnit)
		lpTokens.Div(lpTokens, price)
		if _, err := s.venue.ProvisionLiquidity(ctx, s.id, lpQuote, lpTokens); err != nil {
			return fmt.Errorf("provision liquidity: %w", err)
		}
	}
	return nil
}

// failLocked commits the Failed transition and fixes the refund rate for
// the sale's remaining lifetime. The rate is quote per token scaled by the
// token unit so pro-rata shares survive the decimal gap; it floors, so the
// sum of refunds never exceeds the collected quote.
func (s *Sale) failLocked(now int64) {
	s.status = StatusFailed
	if s.soldAmount.Sign() > 0 {
		rate := new(big.Int).Mul(s.quoteCollected, s.params.Decimals.TokenUnit)
		rate.Div(rate, s.soldAmount)
		s.refundRate = rate
	}

	s.emit(Event{
		Type:        EventSaleFailed,
		SaleID:      s.id,
		QuoteAmount: new(big.Int).Set(s.quoteCollected),
		SoldAmount:  new(big.Int).Set(s.soldAmount),
		RefundRate:  new(big.Int).Set(s.refundRate),
		Status:      StatusFailed.String(),
		Timestamp:   now,
	})
}

func (s *Sale) emit(ev Event) {
	if s.sink != nil {
		s.sink.Publish(ev)
	}
}

// feeOn computes a basis-point fee, rounding up so the pool side of every
// trade is never undercharged.
func feeOn(amount *big.Int, bps uint32) *big.Int {
	if bps == 0 || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	fee.Add(fee, big.NewInt(bpsDenom-1))
	fee.Div(fee, big.NewInt(bpsDenom))
	return fee
}
