package handler

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

var (
	minorPerMajor = decimal.NewFromInt(domain.MinorUnitsPerMajor)
	maxMinor      = decimal.NewFromInt(math.MaxInt64)
	minMinor      = decimal.NewFromInt(math.MinInt64)
)

// ToMinor converts a major-unit amount such as 25.50 into minor units.
// Values with more than two decimal places are rejected. The sign is kept,
// so zero and negative amounts reach the ledger's own checks.
func ToMinor(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(minorPerMajor)
	if !minor.IsInteger() {
		return 0, domain.E(domain.KindInvalidAmount, "", "amount has more than 2 decimal places")
	}
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, domain.E(domain.KindInvalidAmount, "", "amount out of range")
	}
	return minor.IntPart(), nil
}

// Money renders minor units as a fixed two-decimal JSON string, e.g. "25.50".
type Money int64

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + decimal.New(int64(m), -2).StringFixed(2) + `"`), nil
}
