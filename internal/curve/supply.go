package curve

import (
	"errors"
	"math/big"
)

// Supply sizing errors.
var (
	// ErrInvalidAlpha is returned when the ownership ratio is outside (0, 0.5].
	ErrInvalidAlpha = errors.New("ownership ratio must be in (0, 0.5]")

	// ErrInvalidTargetRaise is returned when the funding target is not positive.
	ErrInvalidTargetRaise = errors.New("target raise must be positive")
)

// AlphaDenominator is the basis-point scale of the ownership ratio.
const AlphaDenominator = 10000

// MaxAlphaBps caps the project's reserved share at 50% of total supply.
const MaxAlphaBps = AlphaDenominator / 2

// SupplyAllocation is the token split derived once at sale creation.
type SupplyAllocation struct {
	TotalSupply    *big.Int // token base units
	SalableSupply  *big.Int // sold to the public on the curve
	ReservedSupply *big.Int // retained by the project
}

// CalculateTotalSupply sizes the token supply so that a curve sale of the
// salable share approximates the funding target:
//
//	totalSupply = 100 * targetRaise * sqrt(alpha / (1-alpha)^3)
//
// with alpha in basis points and targetRaise in quote base units. The whole
// expression is folded under a single integer square root so precision is
// lost only once:
//
//	totalSupply = sqrt((100 * targetRaise * tokenUnit * 10000)^2 * alphaBps
//	                   / (quoteUnit^2 * (10000 - alphaBps)^3))
//
// SalableSupply is (1-alpha) of the total; ReservedSupply is the exact
// remainder so the split always sums back to TotalSupply.
func CalculateTotalSupply(targetRaise *big.Int, alphaBps uint32, cfg DecimalConfig) (*SupplyAllocation, error) {
	if alphaBps == 0 || alphaBps > MaxAlphaBps {
		return nil, ErrInvalidAlpha
	}
	if targetRaise == nil || targetRaise.Sign() <= 0 {
		return nil, ErrInvalidTargetRaise
	}
	if !cfg.Valid() {
		return nil, ErrInvalidDecimals
	}

	alpha := big.NewInt(int64(alphaBps))
	denom := big.NewInt(AlphaDenominator)
	complement := new(big.Int).Sub(denom, alpha)

	num := new(big.Int).Mul(targetRaise, big.NewInt(100))
	num.Mul(num, cfg.TokenUnit)
	num.Mul(num, denom)
	num.Mul(num, num) // (100 * R * tokenUnit * 10000)^2
	num.Mul(num, alpha)

	den := new(big.Int).Mul(cfg.QuoteUnit, cfg.QuoteUnit)
	den.Mul(den, new(big.Int).Mul(complement, new(big.Int).Mul(complement, complement)))

	total := new(big.Int).Div(num, den)
	total.Sqrt(total)

	salable := new(big.Int).Mul(total, complement)
	salable.Div(salable, denom)
	reserved := new(big.Int).Sub(total, salable)

	return &SupplyAllocation{
		TotalSupply:    total,
		SalableSupply:  salable,
		ReservedSupply: reserved,
	}, nil
}
