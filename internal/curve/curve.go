// Package curve implements the virtual-reserve constant-product pricing
// engine used to price the primary sale. Reserves are virtual: they derive
// the price curve and do not correspond to escrowed funds.
//
// All arithmetic is exact big-integer math on base-unit amounts. Functions
// that determine how much a counterparty pays round up; functions that
// determine how much a counterparty receives round down. That asymmetry is
// what keeps the reserve product non-decreasing across any trade sequence.
package curve

import (
	"errors"
	"math/big"
)

// Pricing errors.
var (
	// ErrInvalidSaleAmount is returned when initializing with a zero salable supply.
	ErrInvalidSaleAmount = errors.New("invalid sale amount")

	// ErrInvalidDecimals is returned when a decimal config has a zero base unit.
	ErrInvalidDecimals = errors.New("invalid decimal config")

	// ErrInsufficientLiquidity is returned when a quote would drain a reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// Initial price ratio P0 = initPriceNum/initPriceDen quote per token (one cent).
// initPriceComplement encodes (1 - P0) scaled by initPriceDen.
const (
	initPriceNum        = 1
	initPriceDen        = 100
	initPriceComplement = initPriceDen - initPriceNum
)

// DecimalConfig fixes the base units of the quote and token assets for one
// sale. All monetary quantities are integers scaled by these units. A
// zero-valued config is invalid: both base units must be non-zero.
type DecimalConfig struct {
	QuoteDecimals uint8
	TokenDecimals uint8
	QuoteUnit     *big.Int // 10^QuoteDecimals
	TokenUnit     *big.Int // 10^TokenDecimals
}

// NewDecimalConfig derives the base units for the given decimal places.
func NewDecimalConfig(quoteDecimals, tokenDecimals uint8) DecimalConfig {
	return DecimalConfig{
		QuoteDecimals: quoteDecimals,
		TokenDecimals: tokenDecimals,
		QuoteUnit:     pow10(quoteDecimals),
		TokenUnit:     pow10(tokenDecimals),
	}
}

// Valid reports whether both base units are present and non-zero.
func (c DecimalConfig) Valid() bool {
	return c.QuoteUnit != nil && c.QuoteUnit.Sign() > 0 &&
		c.TokenUnit != nil && c.TokenUnit.Sign() > 0
}

func pow10(d uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d)), nil)
}

// Reserves holds the virtual constant-product pair and the invariant fixed
// at initialization. Created once per sale, mutated in place by ApplyDeltas
// for every trade.
type Reserves struct {
	QuoteReserve *big.Int // quote base units
	TokenReserve *big.Int // token base units
	Invariant    *big.Int // QuoteReserve * TokenReserve at initialization
}

// Clone returns a deep copy, used for read-only quoting against a snapshot.
func (r *Reserves) Clone() *Reserves {
	return &Reserves{
		QuoteReserve: new(big.Int).Set(r.QuoteReserve),
		TokenReserve: new(big.Int).Set(r.TokenReserve),
		Invariant:    new(big.Int).Set(r.Invariant),
	}
}

// Initialize derives virtual reserves such that the curve opens at exactly
// P0 and selling the entire salable supply drains a fixed fraction of the
// virtual token reserve:
//
//	quoteReserve = salable * quoteUnit / (tokenUnit * 99)
//	tokenReserve = salable * 100 / 99
//	invariant    = quoteReserve * tokenReserve
func Initialize(salableSupply *big.Int, cfg DecimalConfig) (*Reserves, error) {
	if salableSupply == nil || salableSupply.Sign() <= 0 {
		return nil, ErrInvalidSaleAmount
	}
	if !cfg.Valid() {
		return nil, ErrInvalidDecimals
	}

	// Multiply fully before the single division to keep fixed-point precision.
	quoteReserve := new(big.Int).Mul(salableSupply, big.NewInt(initPriceNum))
	quoteReserve.Mul(quoteReserve, cfg.QuoteUnit)
	quoteReserve.Div(quoteReserve, new(big.Int).Mul(cfg.TokenUnit, big.NewInt(initPriceComplement)))

	tokenReserve := new(big.Int).Mul(salableSupply, big.NewInt(initPriceDen))
	tokenReserve.Div(tokenReserve, big.NewInt(initPriceComplement))

	return &Reserves{
		QuoteReserve: quoteReserve,
		TokenReserve: tokenReserve,
		Invariant:    new(big.Int).Mul(quoteReserve, tokenReserve),
	}, nil
}

// TokensOut quotes the tokens received for an exact quote input:
// tokensOut = tokenReserve * quoteIn / (quoteReserve + quoteIn), floored.
func TokensOut(r *Reserves, quoteIn *big.Int) (*big.Int, error) {
	if r.TokenReserve.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	if quoteIn == nil || quoteIn.Sign() == 0 {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(r.TokenReserve, quoteIn)
	out.Div(out, new(big.Int).Add(r.QuoteReserve, quoteIn))
	return out, nil
}

// QuoteIn quotes the quote input required for an exact token output:
// quoteIn = quoteReserve * tokensOut / (tokenReserve - tokensOut) + 1.
// The +1 ceiling keeps the post-trade product from falling below the
// invariant under integer truncation.
func QuoteIn(r *Reserves, tokensOut *big.Int) (*big.Int, error) {
	if tokensOut == nil || tokensOut.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if tokensOut.Cmp(r.TokenReserve) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	in := new(big.Int).Mul(r.QuoteReserve, tokensOut)
	in.Div(in, new(big.Int).Sub(r.TokenReserve, tokensOut))
	in.Add(in, big.NewInt(1))
	return in, nil
}

// QuoteOut quotes the quote received for selling an exact token input back
// into the curve: quoteOut = quoteReserve * tokensIn / (tokenReserve + tokensIn),
// floored.
func QuoteOut(r *Reserves, tokensIn *big.Int) (*big.Int, error) {
	if r.QuoteReserve.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	if tokensIn == nil || tokensIn.Sign() == 0 {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(r.QuoteReserve, tokensIn)
	out.Div(out, new(big.Int).Add(r.TokenReserve, tokensIn))
	return out, nil
}

// TokensIn quotes the tokens that must be sold for an exact quote output:
// tokensIn = tokenReserve * quoteOut / (quoteReserve - quoteOut) + 1.
// Same ceiling discipline as QuoteIn: the seller pays, so round up.
func TokensIn(r *Reserves, quoteOut *big.Int) (*big.Int, error) {
	if quoteOut == nil || quoteOut.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if quoteOut.Cmp(r.QuoteReserve) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	in := new(big.Int).Mul(r.TokenReserve, quoteOut)
	in.Div(in, new(big.Int).Sub(r.QuoteReserve, quoteOut))
	in.Add(in, big.NewInt(1))
	return in, nil
}

// CurrentPrice returns the spot price in quote base units per whole token,
// rounded to nearest: (quoteReserve * tokenUnit + tokenReserve/2) / tokenReserve.
func CurrentPrice(r *Reserves, cfg DecimalConfig) (*big.Int, error) {
	if r.TokenReserve.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	if !cfg.Valid() {
		return nil, ErrInvalidDecimals
	}
	price := new(big.Int).Mul(r.QuoteReserve, cfg.TokenUnit)
	price.Add(price, new(big.Int).Rsh(r.TokenReserve, 1))
	price.Div(price, r.TokenReserve)
	return price, nil
}

// ApplyDeltas applies a trade's net reserve effect in place. Deltas are
// signed; callers pass only the raw swap amounts, never fees. The stored
// invariant is not recomputed: it is the floor the curve guarantees.
func ApplyDeltas(r *Reserves, quoteDelta, tokenDelta *big.Int) {
	if quoteDelta != nil {
		r.QuoteReserve.Add(r.QuoteReserve, quoteDelta)
	}
	if tokenDelta != nil {
		r.TokenReserve.Add(r.TokenReserve, tokenDelta)
	}
}

// CheckInvariant reports whether the recomputed reserve product still covers
// the invariant fixed at initialization.
func CheckInvariant(r *Reserves) bool {
	product := new(big.Int).Mul(r.QuoteReserve, r.TokenReserve)
	return product.Cmp(r.Invariant) >= 0
}
