package domain

// SaleRecord represents one primary sale for persistence.
// Corresponds to sales table in PostgreSQL. Token and quote amounts are
// stored as decimal strings of base units: they exceed 64-bit range.
type SaleRecord struct {
	SaleID         string // PRIMARY KEY, deterministic hash
	TokenSymbol    string // project token symbol
	Creator        string // sale creator address
	TargetRaise    string // funding target, quote base units
	AlphaBps       int32  // project ownership ratio, basis points
	TotalSupply    string // token base units
	SalableSupply  string // token base units
	ReservedSupply string // token base units
	StartTime      int64  // window open, unix seconds
	EndTime        int64  // window close, unix seconds
	Status         string // ACTIVE | LAUNCHED | FAILED
	RefundRate     string // quote per token scaled by token unit; "0" until FAILED
	CreatedAt      int64  // record creation timestamp (ms)
	UpdatedAt      int64  // last status update timestamp (ms)
}

// Sale status constants.
const (
	SaleStatusActive   = "ACTIVE"
	SaleStatusLaunched = "LAUNCHED"
	SaleStatusFailed   = "FAILED"
)
