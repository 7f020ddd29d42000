// Package recorder persists sale events and forwards them to the live feed.
// It consumes the controller's event stream on a worker goroutine so that
// database writes never run under a sale's lock.
package recorder

import (
	"context"
	"log"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"token-launchpad/internal/curve"
	"token-launchpad/internal/domain"
	"token-launchpad/internal/idhash"
	"token-launchpad/internal/observability"
	"token-launchpad/internal/sale"
	"token-launchpad/internal/storage"
)

// Publisher receives the wire form of every recorded event. Satisfied by
// feed.Hub.
type Publisher interface {
	Publish(v interface{})
}

// Config configures recorder queue behavior.
type Config struct {
	// QueueSize is the event buffer between the controllers and the worker.
	// A full queue drops events rather than stall trading.
	QueueSize int
	// OpTimeout bounds each storage operation.
	OpTimeout time.Duration
}

// DefaultConfig returns default recorder configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize: 1024,
		OpTimeout: 5 * time.Second,
	}
}

// FeedMessage is the JSON wire form of a recorded event. Amounts are decimal
// strings of base units; price and cumulative figures are analytics-grade
// floats in whole units.
type FeedMessage struct {
	Type        string  `json:"type"`
	SaleID      string  `json:"sale_id"`
	Participant string  `json:"participant,omitempty"`
	Side        string  `json:"side,omitempty"`
	TokenAmount string  `json:"token_amount,omitempty"`
	QuoteAmount string  `json:"quote_amount,omitempty"`
	FeeAmount   string  `json:"fee_amount,omitempty"`
	Price       float64 `json:"price"`
	SoldTokens  float64 `json:"sold_tokens"`
	Status      string  `json:"status"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// Recorder implements sale.EventSink. Trades and lifecycle transitions go to
// the sale/trade stores, per-trade price points to the price point store, and
// everything to the feed.
type Recorder struct {
	logger   *log.Logger
	config   Config
	metrics  *observability.Metrics
	decimals curve.DecimalConfig

	sales  storage.SaleStore
	trades storage.TradeStore
	prices storage.PricePointStore // optional
	feed   Publisher               // optional

	events chan sale.Event
	seq    map[string]uint64 // per-sale trade sequence, worker-only
	closed atomic.Bool
	wg     sync.WaitGroup
}

// New creates a Recorder and starts its worker. Prices and feed may be nil.
func New(
	logger *log.Logger,
	decimals curve.DecimalConfig,
	sales storage.SaleStore,
	trades storage.TradeStore,
	prices storage.PricePointStore,
	feed Publisher,
	config *Config,
) *Recorder {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	r := &Recorder{
		logger:   logger,
		config:   cfg,
		metrics:  observability.DefaultMetrics,
		decimals: decimals,
		sales:    sales,
		trades:   trades,
		prices:   prices,
		feed:     feed,
		events:   make(chan sale.Event, cfg.QueueSize),
		seq:      make(map[string]uint64),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Publish implements sale.EventSink. It never blocks: a full queue drops the
// event and logs it.
func (r *Recorder) Publish(ev sale.Event) {
	if r.closed.Load() {
		return
	}

	select {
	case r.events <- ev:
	default:
		r.logger.Printf("recorder queue full, dropping %s for sale %s", ev.Type, ev.SaleID)
	}
}

// RecordSaleCreated persists the initial sale record. Called synchronously at
// creation so the record exists before any trade event lands.
func (r *Recorder) RecordSaleCreated(ctx context.Context, snap sale.Snapshot) error {
	nowMs := time.Now().UnixMilli()
	record := &domain.SaleRecord{
		SaleID:         snap.ID,
		TokenSymbol:    snap.Params.TokenSymbol,
		Creator:        snap.Params.Creator,
		TargetRaise:    snap.Params.TargetRaise.String(),
		AlphaBps:       int32(snap.Params.AlphaBps),
		TotalSupply:    snap.TotalSupply.String(),
		SalableSupply:  snap.SalableSupply.String(),
		ReservedSupply: snap.ReservedSupply.String(),
		StartTime:      snap.Params.StartTime,
		EndTime:        snap.Params.EndTime,
		Status:         snap.Status.String(),
		RefundRate:     "0",
		CreatedAt:      nowMs,
		UpdatedAt:      nowMs,
	}
	return r.sales.Insert(ctx, record)
}

// Close drains the queue and stops the worker.
func (r *Recorder) Close() {
	if r.closed.Swap(true) {
		return
	}
	close(r.events)
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for ev := range r.events {
		r.handle(ev)
	}
}

func (r *Recorder) handle(ev sale.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.OpTimeout)
	defer cancel()

	switch ev.Type {
	case sale.EventSaleCreated:
		r.metrics.SalesCreated.Inc()

	case sale.EventTradeExecuted:
		r.recordTrade(ctx, ev, ev.Side)
		r.recordPricePoint(ctx, ev)
		r.metrics.TradesExecuted.WithLabelValues(ev.Side).Inc()

	case sale.EventSaleLaunched:
		r.updateStatus(ctx, ev, "")
		r.metrics.SalesLaunched.Inc()

	case sale.EventSaleFailed:
		refundRate := "0"
		if ev.RefundRate != nil {
			refundRate = ev.RefundRate.String()
		}
		r.updateStatus(ctx, ev, refundRate)
		r.metrics.SalesFailed.Inc()

	case sale.EventRefundClaimed:
		r.recordTrade(ctx, ev, domain.TradeSideRefund)
		r.metrics.RefundsClaimed.Inc()

	default:
		r.logger.Printf("recorder: unknown event type %q", ev.Type)
		return
	}

	if r.feed != nil {
		r.feed.Publish(r.wireMessage(ev))
	}
}

func (r *Recorder) recordTrade(ctx context.Context, ev sale.Event, side string) {
	r.seq[ev.SaleID]++
	tradeID := idhash.ComputeTradeID(ev.SaleID, ev.Participant, side, ev.Timestamp, r.seq[ev.SaleID])

	nowMs := time.Now().UnixMilli()
	trade := &domain.Trade{
		TradeID:     tradeID,
		SaleID:      ev.SaleID,
		Participant: ev.Participant,
		Side:        side,
		TokenAmount: bigString(ev.TokenAmount),
		QuoteAmount: bigString(ev.QuoteAmount),
		FeeAmount:   bigString(ev.FeeAmount),
		Price:       ev.Price.InexactFloat64(),
		Timestamp:   ev.Timestamp * 1000,
		CreatedAt:   nowMs,
	}

	start := time.Now()
	err := r.trades.Insert(ctx, trade)
	observability.RecordDBQuery("trades", "insert", time.Since(start).Seconds(), err)
	if err != nil {
		r.logger.Printf("recorder: insert trade %s: %v", tradeID, err)
	}
}

func (r *Recorder) recordPricePoint(ctx context.Context, ev sale.Event) {
	if r.prices == nil {
		return
	}

	point := &domain.PricePoint{
		SaleID:      ev.SaleID,
		TimestampMs: ev.Timestamp * 1000,
		Price:       ev.Price.InexactFloat64(),
		SoldTokens:  r.wholeTokens(ev.SoldAmount),
		RaisedQuote: r.wholeQuote(ev.QuoteAmount),
	}

	start := time.Now()
	err := r.prices.InsertBulk(ctx, []*domain.PricePoint{point})
	observability.RecordDBQuery("price_points", "insert", time.Since(start).Seconds(), err)
	if err != nil {
		r.logger.Printf("recorder: insert price point for sale %s: %v", ev.SaleID, err)
	}
}

func (r *Recorder) updateStatus(ctx context.Context, ev sale.Event, refundRate string) {
	start := time.Now()
	err := r.sales.UpdateStatus(ctx, ev.SaleID, ev.Status, refundRate, ev.Timestamp*1000)
	observability.RecordDBQuery("sales", "update_status", time.Since(start).Seconds(), err)
	if err != nil {
		r.logger.Printf("recorder: update sale %s to %s: %v", ev.SaleID, ev.Status, err)
	}
}

func (r *Recorder) wireMessage(ev sale.Event) FeedMessage {
	msg := FeedMessage{
		Type:        ev.Type,
		SaleID:      ev.SaleID,
		Participant: ev.Participant,
		Side:        ev.Side,
		Price:       ev.Price.InexactFloat64(),
		SoldTokens:  r.wholeTokens(ev.SoldAmount),
		Status:      ev.Status,
		TimestampMs: ev.Timestamp * 1000,
	}
	if ev.TokenAmount != nil {
		msg.TokenAmount = ev.TokenAmount.String()
	}
	if ev.QuoteAmount != nil {
		msg.QuoteAmount = ev.QuoteAmount.String()
	}
	if ev.FeeAmount != nil {
		msg.FeeAmount = ev.FeeAmount.String()
	}
	return msg
}

// wholeTokens converts token base units to whole tokens as a float.
func (r *Recorder) wholeTokens(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	return decimal.NewFromBigInt(amount, -int32(r.decimals.TokenDecimals)).InexactFloat64()
}

// wholeQuote converts quote base units to whole quote as a float.
func (r *Recorder) wholeQuote(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	return decimal.NewFromBigInt(amount, -int32(r.decimals.QuoteDecimals)).InexactFloat64()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
