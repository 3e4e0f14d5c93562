package domain

import (
	"math"
)

// Amounts are int64 minor units (cents). 1000.50 is stored as 100050.
// Decimal strings only exist at the HTTP boundary.

// MinorUnitsPerMajor is the scale used by the boundary conversion.
const MinorUnitsPerMajor = 100

// AddMinor adds two minor-unit amounts and reports overflow.
func AddMinor(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, false
	}
	return a + b, true
}

// Debit subtracts amount from balance and refuses to go negative.
func Debit(balance, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if balance < amount {
		return 0, ErrInsufficientBalance
	}
	return balance - amount, nil
}

// Credit adds amount to balance, bounded by maxBalance (0 means unbounded).
func Credit(balance, amount, maxBalance int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	next, ok := AddMinor(balance, amount)
	if !ok || (maxBalance > 0 && next > maxBalance) {
		return 0, ErrLimitExceeded
	}
	return next, nil
}
