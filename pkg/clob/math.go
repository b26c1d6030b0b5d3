package clob

import "math"

// Checked minor-unit arithmetic. Ledger amounts are uint64 and must never
// wrap; every overflow aborts the surrounding operation with
// ErrCalculationFailure.

func mulU64(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrCalculationFailure
	}
	return a * b, nil
}

func addU64(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, ErrCalculationFailure
	}
	return a + b, nil
}

func subU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrCalculationFailure
	}
	return a - b, nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
