package domain

// Trade represents one executed buy, sell or refund claim against a sale.
// Corresponds to trades table in PostgreSQL. Amounts are decimal strings
// of base units.
type Trade struct {
	TradeID     string  // PRIMARY KEY, deterministic hash
	SaleID      string  // FK to sales
	Participant string  // participant address
	Side        string  // "buy" | "sell" | "refund"
	TokenAmount string  // token base units
	QuoteAmount string  // raw curve amount, quote base units
	FeeAmount   string  // origination/exit fee, quote base units
	Price       float64 // post-trade spot price, whole quote per whole token
	Timestamp   int64   // execution timestamp (ms)
	CreatedAt   int64   // record creation timestamp (ms)
}

// Trade side constants.
const (
	TradeSideBuy    = "buy"
	TradeSideSell   = "sell"
	TradeSideRefund = "refund"
)
