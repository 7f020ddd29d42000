package sale_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"token-launchpad/internal/curve"
	"token-launchpad/internal/ledger"
	"token-launchpad/internal/sale"
)

var testDecimals = curve.NewDecimalConfig(6, 18)

func wholeTokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), testDecimals.TokenUnit)
}

func wholeQuote(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), testDecimals.QuoteUnit)
}

// collectSink records published events for assertions.
type collectSink struct {
	mu     sync.Mutex
	events []sale.Event
}

func (c *collectSink) Publish(ev sale.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collectSink) countOf(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// testEnv wires a sale against in-memory collaborators and a settable clock.
type testEnv struct {
	sale    *sale.Sale
	ledger  *ledger.TokenLedger
	custody *ledger.FundsCustody
	venue   *ledger.LiquidityVenue
	sink    *collectSink
	now     int64
}

func defaultParams() sale.Params {
	return sale.Params{
		TokenSymbol: "DSET",
		Creator:     "creator-1",
		TargetRaise: wholeQuote(50_000),
		AlphaBps:    2000, // salable supply: 2,500,000 tokens
		StartTime:   1000,
		EndTime:     2000,
		Decimals:    testDecimals,
		BuyFeeBps:   100, // 1%
		SellFeeBps:  200, // 2%
		MinRaiseBps: 5000,
		LPShareBps:  2000,
	}
}

func newTestEnv(t *testing.T, params sale.Params) *testEnv {
	t.Helper()

	env := &testEnv{
		ledger:  ledger.NewTokenLedger(),
		custody: ledger.NewFundsCustody(),
		venue:   ledger.NewLiquidityVenue(),
		sink:    &collectSink{},
		now:     1500,
	}
	s, err := sale.New(context.Background(), "sale-1", params, sale.Deps{
		Ledger:  env.ledger,
		Custody: env.custody,
		Venue:   env.venue,
		Clock:   sale.ClockFunc(func() int64 { return env.now }),
		Sink:    env.sink,
	})
	if err != nil {
		t.Fatalf("sale.New failed: %v", err)
	}
	env.sale = s
	return env
}

func TestNew_FreezesTransfersAndSizesSupply(t *testing.T) {
	env := newTestEnv(t, defaultParams())

	if !env.ledger.TransferFrozen() {
		t.Error("ledger transfers should be frozen during the sale")
	}

	snap := env.sale.Snapshot()
	if want := wholeTokens(3_125_000); snap.TotalSupply.Cmp(want) != 0 {
		t.Errorf("TotalSupply = %s, want %s", snap.TotalSupply, want)
	}
	if want := wholeTokens(2_500_000); snap.SalableSupply.Cmp(want) != 0 {
		t.Errorf("SalableSupply = %s, want %s", snap.SalableSupply, want)
	}
	sum := new(big.Int).Add(snap.SalableSupply, snap.ReservedSupply)
	if sum.Cmp(snap.TotalSupply) != 0 {
		t.Errorf("salable+reserved = %s, want total %s", sum, snap.TotalSupply)
	}
	if snap.Status != sale.StatusActive {
		t.Errorf("Status = %s, want ACTIVE", snap.Status)
	}
}

func TestBuy_CreditsBuyerAndAdvancesState(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	tokens := wholeTokens(100_000)
	res, err := env.sale.Buy(ctx, "alice", tokens, wholeQuote(100_000))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	bal, _ := env.ledger.BalanceOf(ctx, "alice")
	if bal.Cmp(tokens) != 0 {
		t.Errorf("alice balance = %s, want %s", bal, tokens)
	}

	snap := env.sale.Snapshot()
	if snap.SoldAmount.Cmp(tokens) != 0 {
		t.Errorf("SoldAmount = %s, want %s", snap.SoldAmount, tokens)
	}
	if snap.QuoteCollected.Cmp(res.QuoteAmount) != 0 {
		t.Errorf("QuoteCollected = %s, want %s", snap.QuoteCollected, res.QuoteAmount)
	}
	if res.FeeAmount.Sign() <= 0 {
		t.Error("origination fee should be positive")
	}
	if !curve.CheckInvariant(snap.Reserves) {
		t.Error("invariant violated after buy")
	}
	if env.sink.countOf(sale.EventTradeExecuted) != 1 {
		t.Errorf("expected 1 trade event, got %d", env.sink.countOf(sale.EventTradeExecuted))
	}
}

func TestBuy_SlippageExceeded(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	before := env.sale.Snapshot()
	_, err := env.sale.Buy(ctx, "alice", wholeTokens(100_000), big.NewInt(1))
	if !errors.Is(err, sale.ErrSlippageExceeded) {
		t.Fatalf("got %v, want ErrSlippageExceeded", err)
	}

	after := env.sale.Snapshot()
	if after.SoldAmount.Cmp(before.SoldAmount) != 0 {
		t.Error("failed buy must not advance sold amount")
	}
	bal, _ := env.ledger.BalanceOf(ctx, "alice")
	if bal.Sign() != 0 {
		t.Error("failed buy must not credit the buyer")
	}
}

func TestBuy_WindowViolations(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()
	tokens := wholeTokens(1000)
	bound := wholeQuote(100_000)

	env.now = 999 // before start
	if _, err := env.sale.Buy(ctx, "alice", tokens, bound); !errors.Is(err, sale.ErrSaleNotStarted) {
		t.Errorf("before start: got %v, want ErrSaleNotStarted", err)
	}

	env.now = 2000 // at deadline
	if _, err := env.sale.Buy(ctx, "alice", tokens, bound); !errors.Is(err, sale.ErrSaleEnded) {
		t.Errorf("at deadline: got %v, want ErrSaleEnded", err)
	}
}

func TestBuy_OversellRejected(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	salable := env.sale.Snapshot().SalableSupply
	over := new(big.Int).Add(salable, big.NewInt(1))
	if _, err := env.sale.Buy(ctx, "alice", over, wholeQuote(100_000_000)); !errors.Is(err, sale.ErrExceedsRemainingSupply) {
		t.Fatalf("just-over-boundary buy: got %v, want ErrExceedsRemainingSupply", err)
	}

	// The exact boundary is allowed and completes the raise.
	res, err := env.sale.Buy(ctx, "alice", salable, wholeQuote(100_000_000))
	if err != nil {
		t.Fatalf("exact-boundary buy failed: %v", err)
	}
	if !res.Launched {
		t.Error("exact-boundary buy should launch the sale")
	}
}

func TestLaunch_SplitsFundsAndSeedsLiquidity(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	salable := env.sale.Snapshot().SalableSupply
	if _, err := env.sale.Buy(ctx, "alice", salable, wholeQuote(100_000_000)); err != nil {
		t.Fatalf("sell-out buy failed: %v", err)
	}

	snap := env.sale.Snapshot()
	if snap.Status != sale.StatusLaunched {
		t.Fatalf("Status = %s, want LAUNCHED", snap.Status)
	}
	if env.ledger.TransferFrozen() {
		t.Error("launch should lift the transfer freeze")
	}

	// 20% LP share, 80% to the project.
	lp := new(big.Int).Mul(snap.QuoteCollected, big.NewInt(2000))
	lp.Div(lp, big.NewInt(10000))
	wantFunding := new(big.Int).Sub(snap.QuoteCollected, lp)
	if got := env.custody.ProjectFunding("sale-1"); got.Cmp(wantFunding) != 0 {
		t.Errorf("project funding = %s, want %s", got, wantFunding)
	}

	seed := env.venue.SeedFor("sale-1")
	if seed == nil {
		t.Fatal("liquidity venue was not seeded")
	}
	if seed.QuoteAmount.Cmp(lp) != 0 {
		t.Errorf("seeded quote = %s, want %s", seed.QuoteAmount, lp)
	}
	if seed.TokenAmount.Sign() <= 0 {
		t.Error("seeded token amount should be positive")
	}
}

func TestBuy_RejectedAfterLaunch(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	salable := env.sale.Snapshot().SalableSupply
	if _, err := env.sale.Buy(ctx, "alice", salable, wholeQuote(100_000_000)); err != nil {
		t.Fatalf("sell-out buy failed: %v", err)
	}
	if _, err := env.sale.Buy(ctx, "bob", wholeTokens(1), wholeQuote(1000)); !errors.Is(err, sale.ErrWrongState) {
		t.Errorf("post-launch buy: got %v, want ErrWrongState", err)
	}
	if _, err := env.sale.Sell(ctx, "alice", wholeTokens(1), big.NewInt(0)); !errors.Is(err, sale.ErrWrongState) {
		t.Errorf("post-launch sell: got %v, want ErrWrongState", err)
	}
}

func TestLaunch_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	salable := env.sale.Snapshot().SalableSupply
	if _, err := env.sale.Buy(ctx, "alice", salable, wholeQuote(100_000_000)); err != nil {
		t.Fatalf("sell-out buy failed: %v", err)
	}

	env.now = 3000
	if _, err := env.sale.Finalize(ctx); !errors.Is(err, sale.ErrWrongState) {
		t.Errorf("finalize after launch: got %v, want ErrWrongState", err)
	}
	if n := env.sink.countOf(sale.EventSaleLaunched); n != 1 {
		t.Errorf("launched %d times, want exactly once", n)
	}
}

func TestSell_ReturnsTokensToPool(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	bought := wholeTokens(200_000)
	if _, err := env.sale.Buy(ctx, "alice", bought, wholeQuote(100_000)); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	before := env.sale.Snapshot()

	sold := wholeTokens(50_000)
	res, err := env.sale.Sell(ctx, "alice", sold, big.NewInt(0))
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if res.QuoteAmount.Sign() <= 0 {
		t.Error("sell refund should be positive")
	}
	if res.FeeAmount.Sign() <= 0 {
		t.Error("exit fee should be positive")
	}

	after := env.sale.Snapshot()
	wantSold := new(big.Int).Sub(before.SoldAmount, sold)
	if after.SoldAmount.Cmp(wantSold) != 0 {
		t.Errorf("SoldAmount = %s, want %s", after.SoldAmount, wantSold)
	}
	bal, _ := env.ledger.BalanceOf(ctx, "alice")
	wantBal := new(big.Int).Sub(bought, sold)
	if bal.Cmp(wantBal) != 0 {
		t.Errorf("alice balance = %s, want %s", bal, wantBal)
	}
	if !curve.CheckInvariant(after.Reserves) {
		t.Error("invariant violated after sell")
	}

	// Sold-back tokens remain purchasable.
	if _, err := env.sale.Buy(ctx, "bob", sold, wholeQuote(100_000)); err != nil {
		t.Errorf("re-buy of sold-back tokens failed: %v", err)
	}
}

func TestSell_Violations(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	if _, err := env.sale.Buy(ctx, "alice", wholeTokens(1000), wholeQuote(10_000)); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	// More than the cumulative sold amount.
	if _, err := env.sale.Sell(ctx, "alice", wholeTokens(2000), big.NewInt(0)); !errors.Is(err, sale.ErrInvalidInput) {
		t.Errorf("sell above sold: got %v, want ErrInvalidInput", err)
	}

	// Seller without balance: ledger debit fails, no state change.
	before := env.sale.Snapshot()
	if _, err := env.sale.Sell(ctx, "bob", wholeTokens(500), big.NewInt(0)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("sell without balance: got %v, want ErrInsufficientBalance", err)
	}
	after := env.sale.Snapshot()
	if after.SoldAmount.Cmp(before.SoldAmount) != 0 {
		t.Error("failed sell must not change sold amount")
	}

	// Refund bound above the quote.
	if _, err := env.sale.Sell(ctx, "alice", wholeTokens(500), wholeQuote(100_000)); !errors.Is(err, sale.ErrSlippageExceeded) {
		t.Errorf("tight sell bound: got %v, want ErrSlippageExceeded", err)
	}
}

func TestFinalize_BeforeDeadline(t *testing.T) {
	env := newTestEnv(t, defaultParams())

	if _, err := env.sale.Finalize(context.Background()); !errors.Is(err, sale.ErrSaleNotEnded) {
		t.Errorf("got %v, want ErrSaleNotEnded", err)
	}
}

func TestFinalize_LaunchesOnPartialRaise(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	// Above the 50% minimum raise, below a sell-out.
	if _, err := env.sale.Buy(ctx, "alice", wholeTokens(1_500_000), wholeQuote(10_000_000)); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	env.now = 2000
	status, err := env.sale.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if status != sale.StatusLaunched {
		t.Errorf("status = %s, want LAUNCHED", status)
	}
	if env.custody.ProjectFunding("sale-1").Sign() <= 0 {
		t.Error("project funding should be transferred at launch")
	}
}

func TestFinalize_FailsBelowMinimumRaise(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	if _, err := env.sale.Buy(ctx, "alice", wholeTokens(300_000), wholeQuote(10_000_000)); err != nil {
		t.Fatalf("alice buy failed: %v", err)
	}
	if _, err := env.sale.Buy(ctx, "bob", wholeTokens(100_000), wholeQuote(10_000_000)); err != nil {
		t.Fatalf("bob buy failed: %v", err)
	}

	env.now = 2500
	status, err := env.sale.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if status != sale.StatusFailed {
		t.Fatalf("status = %s, want FAILED", status)
	}

	snap := env.sale.Snapshot()
	if snap.RefundRate.Sign() <= 0 {
		t.Error("refund rate should be fixed and positive after failure")
	}
}

func TestClaimRefund_ProRata(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	b1 := wholeTokens(300_000)
	b2 := wholeTokens(100_000)
	if _, err := env.sale.Buy(ctx, "alice", b1, wholeQuote(10_000_000)); err != nil {
		t.Fatalf("alice buy failed: %v", err)
	}
	if _, err := env.sale.Buy(ctx, "bob", b2, wholeQuote(10_000_000)); err != nil {
		t.Fatalf("bob buy failed: %v", err)
	}

	// Claims before failure are rejected.
	if _, err := env.sale.ClaimRefund(ctx, "alice"); !errors.Is(err, sale.ErrWrongState) {
		t.Errorf("claim while active: got %v, want ErrWrongState", err)
	}

	env.now = 2500
	if _, err := env.sale.Finalize(ctx); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	collected := env.sale.Snapshot().QuoteCollected

	r1, err := env.sale.ClaimRefund(ctx, "alice")
	if err != nil {
		t.Fatalf("alice claim failed: %v", err)
	}
	r2, err := env.sale.ClaimRefund(ctx, "bob")
	if err != nil {
		t.Fatalf("bob claim failed: %v", err)
	}

	if r1.Cmp(r2) <= 0 {
		t.Errorf("larger balance should refund more: r1=%s r2=%s", r1, r2)
	}

	// r1/b1 == r2/b2 within integer-rounding tolerance: compare the cross
	// products, allowing one refund-rate unit of slack per token.
	left := new(big.Int).Mul(r1, b2)
	right := new(big.Int).Mul(r2, b1)
	diff := new(big.Int).Sub(left, right)
	diff.Abs(diff)
	tolerance := new(big.Int).Add(b1, b2)
	if diff.Cmp(tolerance) > 0 {
		t.Errorf("refunds not proportional: r1=%s b1=%s r2=%s b2=%s", r1, b1, r2, b2)
	}

	// Refunds never exceed what was collected.
	total := env.custody.TotalRefunded("sale-1")
	if total.Cmp(collected) > 0 {
		t.Errorf("total refunds %s exceed collected %s", total, collected)
	}

	// Claimed tokens are locked away.
	bal, _ := env.ledger.BalanceOf(ctx, "alice")
	if bal.Sign() != 0 {
		t.Errorf("alice balance after claim = %s, want 0", bal)
	}

	// One claim per participant.
	if _, err := env.sale.ClaimRefund(ctx, "alice"); !errors.Is(err, sale.ErrAlreadyClaimed) {
		t.Errorf("second claim: got %v, want ErrAlreadyClaimed", err)
	}

	// Nothing to refund for a stranger.
	if _, err := env.sale.ClaimRefund(ctx, "carol"); !errors.Is(err, sale.ErrInvalidInput) {
		t.Errorf("claim without balance: got %v, want ErrInvalidInput", err)
	}
}

func TestFinalize_NothingSoldFails(t *testing.T) {
	env := newTestEnv(t, defaultParams())

	env.now = 2500
	status, err := env.sale.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if status != sale.StatusFailed {
		t.Errorf("status = %s, want FAILED", status)
	}
	if env.sale.Snapshot().RefundRate.Sign() != 0 {
		t.Error("refund rate should stay zero when nothing was sold")
	}
}

func TestQuotes_MatchExecution(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	ctx := context.Background()

	tokens := wholeTokens(10_000)
	cost, fee, err := env.sale.QuoteBuy(tokens)
	if err != nil {
		t.Fatalf("QuoteBuy failed: %v", err)
	}
	res, err := env.sale.Buy(ctx, "alice", tokens, new(big.Int).Add(cost, fee))
	if err != nil {
		t.Fatalf("Buy at quoted cost failed: %v", err)
	}
	if res.QuoteAmount.Cmp(cost) != 0 || res.FeeAmount.Cmp(fee) != 0 {
		t.Errorf("executed (%s, %s) differs from quote (%s, %s)", res.QuoteAmount, res.FeeAmount, cost, fee)
	}
}

func TestNew_InvalidParams(t *testing.T) {
	deps := sale.Deps{Ledger: ledger.NewTokenLedger(), Custody: ledger.NewFundsCustody()}
	ctx := context.Background()

	p := defaultParams()
	p.TokenSymbol = ""
	if _, err := sale.New(ctx, "s", p, deps); !errors.Is(err, sale.ErrInvalidInput) {
		t.Errorf("empty symbol: got %v, want ErrInvalidInput", err)
	}

	p = defaultParams()
	p.EndTime = p.StartTime
	if _, err := sale.New(ctx, "s", p, deps); !errors.Is(err, sale.ErrInvalidInput) {
		t.Errorf("empty window: got %v, want ErrInvalidInput", err)
	}

	p = defaultParams()
	p.AlphaBps = 6000
	if _, err := sale.New(ctx, "s", p, deps); !errors.Is(err, curve.ErrInvalidAlpha) {
		t.Errorf("alpha above cap: got %v, want ErrInvalidAlpha", err)
	}

	p = defaultParams()
	p.TargetRaise = big.NewInt(0)
	if _, err := sale.New(ctx, "s", p, deps); !errors.Is(err, curve.ErrInvalidTargetRaise) {
		t.Errorf("zero raise: got %v, want ErrInvalidTargetRaise", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := sale.NewRegistry()
	ctx := context.Background()
	deps := sale.Deps{
		Ledger:  ledger.NewTokenLedger(),
		Custody: ledger.NewFundsCustody(),
		Clock:   sale.ClockFunc(func() int64 { return 1500 }),
	}

	s, err := reg.Create(ctx, "sale-a", defaultParams(), deps)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := reg.Create(ctx, "sale-a", defaultParams(), deps); !errors.Is(err, sale.ErrInvalidInput) {
		t.Errorf("duplicate id: got %v, want ErrInvalidInput", err)
	}

	got, ok := reg.Get("sale-a")
	if !ok || got != s {
		t.Error("Get should return the registered sale")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get of unknown id should report false")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
	if ids := reg.IDs(); len(ids) != 1 || ids[0] != "sale-a" {
		t.Errorf("IDs = %v, want [sale-a]", ids)
	}
}
