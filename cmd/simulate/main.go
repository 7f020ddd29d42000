// Command simulate runs one scripted fundraise end to end against the
// in-memory stack: deterministic participants trade on the curve until the
// deadline, the sale finalizes, and failed sales play out their refund
// claims. Useful for eyeballing curve and lifecycle behavior without a
// server or database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"math/rand"
	"os"

	"token-launchpad/internal/curve"
	"token-launchpad/internal/idhash"
	"token-launchpad/internal/ledger"
	"token-launchpad/internal/recorder"
	"token-launchpad/internal/sale"
	"token-launchpad/internal/storage/memory"
)

// simClock is a scripted clock the run advances by hand.
type simClock struct {
	now int64
}

func (c *simClock) Now() int64 { return c.now }

// runSummary is the machine-readable result of one simulated sale.
type runSummary struct {
	SaleID         string `json:"sale_id"`
	Status         string `json:"status"`
	Steps          int    `json:"steps"`
	Buys           int    `json:"buys"`
	Sells          int    `json:"sells"`
	Rejected       int    `json:"rejected"`
	SoldAmount     string `json:"sold_amount"`
	QuoteCollected string `json:"quote_collected"`
	FeeCollected   string `json:"fee_collected"`
	FinalPrice     string `json:"final_price"`
	RefundRate     string `json:"refund_rate"`
	TotalRefunded  string `json:"total_refunded"`
	ProjectFunding string `json:"project_funding"`
	LPQuote        string `json:"lp_quote"`
	LPTokens       string `json:"lp_tokens"`
	TradesRecorded int    `json:"trades_recorded"`
}

func main() {
	targetRaise := flag.Int64("target-raise", 50_000, "Fundraising target in whole quote units")
	alphaBps := flag.Uint("alpha-bps", 2000, "Project ownership ratio in basis points")
	buyFeeBps := flag.Uint("buy-fee-bps", 100, "Origination fee in basis points")
	sellFeeBps := flag.Uint("sell-fee-bps", 100, "Exit fee in basis points")
	minRaiseBps := flag.Uint("min-raise-bps", 5000, "Minimum sold fraction to launch at deadline, basis points")
	lpShareBps := flag.Uint("lp-share-bps", 2000, "Share of collected quote routed to liquidity, basis points")
	participants := flag.Int("participants", 10, "Number of simulated participants")
	steps := flag.Int("steps", 200, "Number of trade attempts before the deadline")
	sellProb := flag.Float64("sell-prob", 0.2, "Probability a step sells instead of buys")
	spendCap := flag.Int64("spend-cap", 60_000, "Aggregate spend ceiling in whole quote units")
	seed := flag.Int64("seed", 42, "Deterministic random seed")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[simulate] ", log.LstdFlags)

	if *participants <= 0 || *steps <= 0 {
		logger.Fatal("--participants and --steps must be positive")
	}
	if *sellProb < 0 || *sellProb > 1 {
		logger.Fatal("--sell-prob must be in [0, 1]")
	}

	ctx := context.Background()
	decimals := curve.NewDecimalConfig(6, 18)

	// The recorder writes to memory stores so the run exercises the same
	// persistence path as the server.
	saleStore := memory.NewSaleStore()
	tradeStore := memory.NewTradeStore()
	priceStore := memory.NewPricePointStore()
	rec := recorder.New(logger, decimals, saleStore, tradeStore, priceStore, nil, nil)
	defer rec.Close()

	clock := &simClock{now: 1_000}
	params := sale.Params{
		TokenSymbol: "SIM",
		Creator:     "simulated-creator",
		TargetRaise: new(big.Int).Mul(big.NewInt(*targetRaise), decimals.QuoteUnit),
		AlphaBps:    uint32(*alphaBps),
		StartTime:   1_000,
		EndTime:     1_000 + int64(*steps) + 1,
		Decimals:    decimals,
		BuyFeeBps:   uint32(*buyFeeBps),
		SellFeeBps:  uint32(*sellFeeBps),
		MinRaiseBps: uint32(*minRaiseBps),
		LPShareBps:  uint32(*lpShareBps),
	}

	saleID := idhash.ComputeSaleID(params.TokenSymbol, params.Creator, params.StartTime, params.EndTime)
	custody := ledger.NewFundsCustody()
	venue := ledger.NewLiquidityVenue()
	tokens := ledger.NewTokenLedger()

	s, err := sale.New(ctx, saleID, params, sale.Deps{
		Ledger:  tokens,
		Custody: custody,
		Venue:   venue,
		Clock:   clock,
		Sink:    rec,
	})
	if err != nil {
		logger.Fatalf("create sale: %v", err)
	}
	if err := rec.RecordSaleCreated(ctx, s.Snapshot()); err != nil {
		logger.Fatalf("record sale: %v", err)
	}

	names := make([]string, *participants)
	for i := range names {
		names[i] = fmt.Sprintf("participant-%02d", i)
	}

	summary := runSummary{SaleID: saleID, Steps: *steps}
	rng := rand.New(rand.NewSource(*seed))
	spent := big.NewInt(0)
	spendLimit := new(big.Int).Mul(big.NewInt(*spendCap), decimals.QuoteUnit)

	for step := 0; step < *steps; step++ {
		clock.now++
		who := names[rng.Intn(len(names))]

		if rng.Float64() < *sellProb {
			// Sell a random slice of whatever the participant holds.
			balance, err := tokens.BalanceOf(ctx, who)
			if err != nil || balance.Sign() == 0 {
				continue
			}
			amount := new(big.Int).Div(balance, big.NewInt(int64(1+rng.Intn(4))))
			if amount.Sign() == 0 {
				continue
			}
			if _, err := s.Sell(ctx, who, amount, big.NewInt(0)); err != nil {
				summary.Rejected++
				continue
			}
			summary.Sells++
			continue
		}

		snap := s.Snapshot()
		remaining := new(big.Int).Sub(snap.SalableSupply, snap.SoldAmount)
		if remaining.Sign() == 0 {
			break
		}
		amount := new(big.Int).Div(remaining, big.NewInt(int64(10+rng.Intn(90))))
		if amount.Sign() == 0 {
			amount = big.NewInt(1)
		}

		cost, fee, err := s.QuoteBuy(amount)
		if err != nil {
			summary.Rejected++
			continue
		}
		total := new(big.Int).Add(cost, fee)
		if new(big.Int).Add(spent, total).Cmp(spendLimit) > 0 {
			break
		}

		res, err := s.Buy(ctx, who, amount, total)
		if err != nil {
			summary.Rejected++
			continue
		}
		summary.Buys++
		spent.Add(spent, new(big.Int).Add(res.QuoteAmount, res.FeeAmount))
		if res.Launched {
			logger.Printf("target reached at step %d", step)
			break
		}
	}

	// Past the deadline every touch finalizes; call it explicitly so the
	// run also covers sales the trading loop never launched.
	clock.now = params.EndTime
	if s.Status() == sale.StatusActive {
		if _, err := s.Finalize(ctx); err != nil {
			logger.Fatalf("finalize: %v", err)
		}
	}

	totalRefunded := big.NewInt(0)
	if s.Status() == sale.StatusFailed {
		for _, who := range names {
			refund, err := s.ClaimRefund(ctx, who)
			if err != nil {
				continue
			}
			totalRefunded.Add(totalRefunded, refund)
		}
	}

	// Let the recorder drain before reading the stores back.
	rec.Close()
	trades, err := tradeStore.GetBySaleID(ctx, saleID)
	if err != nil {
		logger.Fatalf("read trades: %v", err)
	}

	snap := s.Snapshot()
	summary.Status = snap.Status.String()
	summary.SoldAmount = snap.SoldAmount.String()
	summary.QuoteCollected = snap.QuoteCollected.String()
	summary.FeeCollected = snap.FeeCollected.String()
	summary.FinalPrice = snap.Price.String()
	summary.RefundRate = snap.RefundRate.String()
	summary.TotalRefunded = totalRefunded.String()
	summary.ProjectFunding = custody.ProjectFunding(saleID).String()
	summary.TradesRecorded = len(trades)
	if lp := venue.SeedFor(saleID); lp != nil {
		summary.LPQuote = lp.QuoteAmount.String()
		summary.LPTokens = lp.TokenAmount.String()
	} else {
		summary.LPQuote = "0"
		summary.LPTokens = "0"
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(output))
		return
	}
	printSummary(summary, decimals)
}

// printSummary outputs a human-readable run summary.
func printSummary(s runSummary, decimals curve.DecimalConfig) {
	fmt.Println()
	fmt.Println("=== Simulation Result ===")
	fmt.Printf("Sale ID:          %s\n", s.SaleID)
	fmt.Printf("Status:           %s\n", s.Status)
	fmt.Println()

	fmt.Println("Trading:")
	fmt.Printf("  Buys:           %d\n", s.Buys)
	fmt.Printf("  Sells:          %d\n", s.Sells)
	fmt.Printf("  Rejected:       %d\n", s.Rejected)
	fmt.Printf("  Recorded:       %d\n", s.TradesRecorded)
	fmt.Println()

	fmt.Println("Outcome:")
	fmt.Printf("  Sold:           %s tokens\n", wholeUnits(s.SoldAmount, decimals.TokenDecimals))
	fmt.Printf("  Raised:         %s quote\n", wholeUnits(s.QuoteCollected, decimals.QuoteDecimals))
	fmt.Printf("  Fees:           %s quote\n", wholeUnits(s.FeeCollected, decimals.QuoteDecimals))
	fmt.Printf("  Final Price:    %s\n", s.FinalPrice)

	switch s.Status {
	case "FAILED":
		fmt.Printf("  Refund Rate:    %s\n", s.RefundRate)
		fmt.Printf("  Refunded:       %s quote\n", wholeUnits(s.TotalRefunded, decimals.QuoteDecimals))
	case "LAUNCHED":
		fmt.Printf("  Project Funds:  %s quote\n", wholeUnits(s.ProjectFunding, decimals.QuoteDecimals))
		fmt.Printf("  LP Quote:       %s quote\n", wholeUnits(s.LPQuote, decimals.QuoteDecimals))
		fmt.Printf("  LP Tokens:      %s tokens\n", wholeUnits(s.LPTokens, decimals.TokenDecimals))
	}
}

// wholeUnits renders a base-unit decimal string in whole units with the
// fractional part trimmed.
func wholeUnits(baseUnits string, dec uint8) string {
	v, ok := new(big.Int).SetString(baseUnits, 10)
	if !ok {
		return baseUnits
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dec)), nil)
	whole, frac := new(big.Int).QuoRem(v, unit, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	return fmt.Sprintf("%s.%0*d", whole, int(dec), frac)
}
