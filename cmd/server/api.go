package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"token-launchpad/internal/account"
	"token-launchpad/internal/curve"
	"token-launchpad/internal/domain"
	"token-launchpad/internal/idhash"
	"token-launchpad/internal/ledger"
	"token-launchpad/internal/observability"
	"token-launchpad/internal/sale"
	"token-launchpad/internal/storage"
)

// createSaleRequest is the JSON body for POST /sales. Amounts are decimal
// strings of base units. Fee and ratio fields fall back to the platform
// defaults when omitted.
type createSaleRequest struct {
	TokenSymbol string `json:"token_symbol"`
	Creator     string `json:"creator"`
	TargetRaise string `json:"target_raise"`
	AlphaBps    uint32 `json:"alpha_bps"`
	StartTime   int64  `json:"start_time"`
	EndTime     int64  `json:"end_time"`

	BuyFeeBps   *uint32 `json:"buy_fee_bps,omitempty"`
	SellFeeBps  *uint32 `json:"sell_fee_bps,omitempty"`
	MinRaiseBps *uint32 `json:"min_raise_bps,omitempty"`
	LPShareBps  *uint32 `json:"lp_share_bps,omitempty"`
}

// saleResponse is the JSON form of a sale snapshot.
type saleResponse struct {
	SaleID         string `json:"sale_id"`
	TokenSymbol    string `json:"token_symbol"`
	Creator        string `json:"creator"`
	TargetRaise    string `json:"target_raise"`
	AlphaBps       uint32 `json:"alpha_bps"`
	StartTime      int64  `json:"start_time"`
	EndTime        int64  `json:"end_time"`
	Status         string `json:"status"`
	TotalSupply    string `json:"total_supply"`
	SalableSupply  string `json:"salable_supply"`
	ReservedSupply string `json:"reserved_supply"`
	SoldAmount     string `json:"sold_amount"`
	QuoteCollected string `json:"quote_collected"`
	FeeCollected   string `json:"fee_collected"`
	RefundRate     string `json:"refund_rate"`
	Price          string `json:"price"`
}

type tradeRequest struct {
	Participant string `json:"participant"`
	TokenAmount string `json:"token_amount"`
	// MaxQuoteCost bounds buys, MinQuoteOut bounds sells.
	MaxQuoteCost string `json:"max_quote_cost,omitempty"`
	MinQuoteOut  string `json:"min_quote_out,omitempty"`
}

type tradeResponse struct {
	SaleID      string `json:"sale_id"`
	Participant string `json:"participant"`
	Side        string `json:"side"`
	TokenAmount string `json:"token_amount"`
	QuoteAmount string `json:"quote_amount"`
	FeeAmount   string `json:"fee_amount"`
	Price       string `json:"price"`
	Launched    bool   `json:"launched"`
	Timestamp   int64  `json:"timestamp"`
}

type quoteResponse struct {
	Side        string `json:"side"`
	TokenAmount string `json:"token_amount"`
	QuoteAmount string `json:"quote_amount"`
	FeeAmount   string `json:"fee_amount"`
	Total       string `json:"total"`
}

// tradeRecordResponse is the JSON form of a persisted trade.
type tradeRecordResponse struct {
	TradeID     string  `json:"trade_id"`
	SaleID      string  `json:"sale_id"`
	Participant string  `json:"participant"`
	Side        string  `json:"side"`
	TokenAmount string  `json:"token_amount"`
	QuoteAmount string  `json:"quote_amount"`
	FeeAmount   string  `json:"fee_amount"`
	Price       float64 `json:"price"`
	Timestamp   int64   `json:"timestamp"`
}

type claimRequest struct {
	Participant string `json:"participant"`
}

type claimResponse struct {
	SaleID       string `json:"sale_id"`
	Participant  string `json:"participant"`
	RefundAmount string `json:"refund_amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	creator, err := account.Parse(req.Creator)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("creator: %v", err))
		return
	}
	targetRaise, err := parseAmount(req.TargetRaise)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("target_raise: %v", err))
		return
	}

	params := sale.Params{
		TokenSymbol: req.TokenSymbol,
		Creator:     creator.String(),
		TargetRaise: targetRaise,
		AlphaBps:    req.AlphaBps,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Decimals:    s.decimals,
		BuyFeeBps:   uint32(s.fees.buyFeeBps),
		SellFeeBps:  uint32(s.fees.sellFeeBps),
		MinRaiseBps: uint32(s.fees.minRaiseBps),
		LPShareBps:  uint32(s.fees.lpShareBps),
	}
	if req.BuyFeeBps != nil {
		params.BuyFeeBps = *req.BuyFeeBps
	}
	if req.SellFeeBps != nil {
		params.SellFeeBps = *req.SellFeeBps
	}
	if req.MinRaiseBps != nil {
		params.MinRaiseBps = *req.MinRaiseBps
	}
	if req.LPShareBps != nil {
		params.LPShareBps = *req.LPShareBps
	}

	saleID := idhash.ComputeSaleID(params.TokenSymbol, params.Creator, params.StartTime, params.EndTime)

	created, err := s.registry.Create(r.Context(), saleID, params, sale.Deps{
		Ledger:  ledger.NewTokenLedger(),
		Custody: s.custody,
		Venue:   s.venue,
		Sink:    s.recorder,
	})
	if err != nil {
		writeSaleError(w, err)
		return
	}

	snap := created.Snapshot()
	if err := s.recorder.RecordSaleCreated(r.Context(), snap); err != nil {
		s.logger.Printf("record sale %s: %v", saleID, err)
	}
	s.updateActiveSales()

	writeJSON(w, http.StatusCreated, snapshotResponse(snap))
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.IDs()
	sales := make([]saleResponse, 0, len(ids))
	for _, id := range ids {
		if sl, ok := s.registry.Get(id); ok {
			sales = append(sales, snapshotResponse(sl.Snapshot()))
		}
	}
	writeJSON(w, http.StatusOK, sales)
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "sale not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(sl.Snapshot()))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "sale not found")
		return
	}

	side := r.URL.Query().Get("side")
	tokenAmount, err := parseAmount(r.URL.Query().Get("token_amount"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("token_amount: %v", err))
		return
	}

	var amount, fee *big.Int
	switch side {
	case sale.SideBuy:
		amount, fee, err = sl.QuoteBuy(tokenAmount)
	case sale.SideSell:
		amount, fee, err = sl.QuoteSell(tokenAmount)
	default:
		writeJSONError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if err != nil {
		writeSaleError(w, err)
		return
	}
	observability.DefaultMetrics.QuoteRequests.WithLabelValues(side).Inc()

	// Buys pay amount plus fee, sells receive amount minus fee.
	total := new(big.Int)
	if side == sale.SideBuy {
		total.Add(amount, fee)
	} else {
		total.Sub(amount, fee)
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Side:        side,
		TokenAmount: tokenAmount.String(),
		QuoteAmount: amount.String(),
		FeeAmount:   fee.String(),
		Total:       total.String(),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	saleID := r.PathValue("id")
	if _, ok := s.registry.Get(saleID); !ok {
		writeJSONError(w, http.StatusNotFound, "sale not found")
		return
	}

	trades, err := s.loadTrades(r, saleID)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load trades: %v", err))
		return
	}

	out := make([]tradeRecordResponse, 0, len(trades))
	for _, tr := range trades {
		out = append(out, tradeRecordResponse{
			TradeID:     tr.TradeID,
			SaleID:      tr.SaleID,
			Participant: tr.Participant,
			Side:        tr.Side,
			TokenAmount: tr.TokenAmount,
			QuoteAmount: tr.QuoteAmount,
			FeeAmount:   tr.FeeAmount,
			Price:       tr.Price,
			Timestamp:   tr.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "sale not found")
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	buyer, err := account.Parse(req.Participant)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("participant: %v", err))
		return
	}
	tokenAmount, err := parseAmount(req.TokenAmount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("token_amount: %v", err))
		return
	}
	maxQuoteCost, err := parseAmount(req.MaxQuoteCost)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("max_quote_cost: %v", err))
		return
	}

	start := time.Now()
	res, err := sl.Buy(r.Context(), buyer.String(), tokenAmount, maxQuoteCost)
	observability.DefaultMetrics.TradeLatency.WithLabelValues(sale.SideBuy).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordTradeRejected(sale.SideBuy, rejectionReason(err))
		writeSaleError(w, err)
		return
	}
	if res.Launched {
		s.updateActiveSales()
	}

	writeJSON(w, http.StatusOK, tradeResultResponse(res))
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "sale not found")
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	seller, err := account.Parse(req.Participant)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("participant: %v", err))
		return
	}
	tokenAmount, err := parseAmount(req.TokenAmount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("token_amount: %v", err))
		return
	}
	minQuoteOut := big.NewInt(0)
	if req.MinQuoteOut != "" {
		minQuoteOut, err = parseAmount(req.MinQuoteOut)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("min_quote_out: %v", err))
			return
		}
	}

	start := time.Now()
	res, err := sl.Sell(r.Context(), seller.String(), tokenAmount, minQuoteOut)
	observability.DefaultMetrics.TradeLatency.WithLabelValues(sale.SideSell).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordTradeRejected(sale.SideSell, rejectionReason(err))
		writeSaleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tradeResultResponse(res))
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "sale not found")
		return
	}

	status, err := sl.Finalize(r.Context())
	if err != nil {
		writeSaleError(w, err)
		return
	}
	s.updateActiveSales()

	writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "sale not found")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	participant, err := account.Parse(req.Participant)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("participant: %v", err))
		return
	}

	refund, err := sl.ClaimRefund(r.Context(), participant.String())
	if err != nil {
		writeSaleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		SaleID:       sl.ID(),
		Participant:  participant.String(),
		RefundAmount: refund.String(),
	})
}

// loadTrades reads a sale's trades, optionally filtered by the participant
// or start/end (ms, inclusive) query parameters.
func (s *Server) loadTrades(r *http.Request, saleID string) ([]*domain.Trade, error) {
	q := r.URL.Query()
	if participant := q.Get("participant"); participant != "" {
		return s.stores.tradeStore.GetByParticipant(r.Context(), saleID, participant)
	}
	if q.Has("start") || q.Has("end") {
		start, err := parseMillis(q.Get("start"), 0)
		if err != nil {
			return nil, err
		}
		end, err := parseMillis(q.Get("end"), math.MaxInt64)
		if err != nil {
			return nil, err
		}
		return s.stores.tradeStore.GetByTimeRange(r.Context(), saleID, start, end)
	}
	return s.stores.tradeStore.GetBySaleID(r.Context(), saleID)
}

func parseMillis(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid timestamp %q", storage.ErrInvalidInput, s)
	}
	return v, nil
}

// updateActiveSales recomputes the ACTIVE sale count gauge.
func (s *Server) updateActiveSales() {
	active := 0
	for _, id := range s.registry.IDs() {
		if sl, ok := s.registry.Get(id); ok && sl.Status() == sale.StatusActive {
			active++
		}
	}
	observability.DefaultMetrics.ActiveSales.Set(float64(active))
}

func snapshotResponse(snap sale.Snapshot) saleResponse {
	return saleResponse{
		SaleID:         snap.ID,
		TokenSymbol:    snap.Params.TokenSymbol,
		Creator:        snap.Params.Creator,
		TargetRaise:    snap.Params.TargetRaise.String(),
		AlphaBps:       snap.Params.AlphaBps,
		StartTime:      snap.Params.StartTime,
		EndTime:        snap.Params.EndTime,
		Status:         snap.Status.String(),
		TotalSupply:    snap.TotalSupply.String(),
		SalableSupply:  snap.SalableSupply.String(),
		ReservedSupply: snap.ReservedSupply.String(),
		SoldAmount:     snap.SoldAmount.String(),
		QuoteCollected: snap.QuoteCollected.String(),
		FeeCollected:   snap.FeeCollected.String(),
		RefundRate:     snap.RefundRate.String(),
		Price:          snap.Price.String(),
	}
}

func tradeResultResponse(res *sale.TradeResult) tradeResponse {
	return tradeResponse{
		SaleID:      res.SaleID,
		Participant: res.Participant,
		Side:        res.Side,
		TokenAmount: res.TokenAmount.String(),
		QuoteAmount: res.QuoteAmount.String(),
		FeeAmount:   res.FeeAmount.String(),
		Price:       res.Price.String(),
		Launched:    res.Launched,
		Timestamp:   res.Timestamp,
	}
}

// parseAmount parses a positive decimal string of base units.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return v, nil
}

// rejectionReason maps a trade error to a metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, sale.ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, sale.ErrExceedsRemainingSupply):
		return "supply"
	case errors.Is(err, sale.ErrSaleNotStarted), errors.Is(err, sale.ErrSaleEnded):
		return "window"
	case errors.Is(err, sale.ErrWrongState):
		return "state"
	default:
		return "other"
	}
}

// writeSaleError maps controller errors onto HTTP status codes.
func writeSaleError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sale.ErrInvalidInput),
		errors.Is(err, sale.ErrSlippageExceeded),
		errors.Is(err, sale.ErrExceedsRemainingSupply),
		errors.Is(err, curve.ErrInsufficientLiquidity):
		status = http.StatusBadRequest
	case errors.Is(err, sale.ErrSaleNotStarted),
		errors.Is(err, sale.ErrSaleEnded),
		errors.Is(err, sale.ErrSaleNotEnded),
		errors.Is(err, sale.ErrWrongState),
		errors.Is(err, sale.ErrAlreadyClaimed):
		status = http.StatusConflict
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
