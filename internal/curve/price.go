package curve

import (
	"github.com/shopspring/decimal"
)

// PriceDecimal converts the virtual reserves into a human-readable price
// (whole quote per whole token) for records and event feeds. The integer
// CurrentPrice stays authoritative for anything the engine settles on.
func PriceDecimal(r *Reserves, cfg DecimalConfig) decimal.Decimal {
	if r == nil || r.TokenReserve.Sign() == 0 {
		return decimal.Zero
	}
	quote := decimal.NewFromBigInt(r.QuoteReserve, -int32(cfg.QuoteDecimals))
	tokens := decimal.NewFromBigInt(r.TokenReserve, -int32(cfg.TokenDecimals))
	return quote.Div(tokens)
}
