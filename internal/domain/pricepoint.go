package domain

// PricePoint represents the curve price after one trade.
// Corresponds to price_points table in ClickHouse; float columns are
// analytics-grade, the engine's integer state stays authoritative.
type PricePoint struct {
	SaleID      string  // sale identifier
	TimestampMs int64   // Unix timestamp in milliseconds
	Price       float64 // whole quote per whole token
	SoldTokens  float64 // cumulative sold, whole tokens
	RaisedQuote float64 // cumulative collected, whole quote
}
