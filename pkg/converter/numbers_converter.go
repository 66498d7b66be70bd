package converter

import (
	"math"
	"strconv"
	"strings"
)

const (
	microsPerUnit = 1_000_000
	centsPerUnit  = 100
)

// MicrosToCurrency converts an amount in millionths of a currency unit to a decimal
// amount rounded to cents.
func MicrosToCurrency(micros int64) float64 {
	return roundCents(float64(micros) / microsPerUnit)
}

// CentsToCurrency converts an integer amount of cents to a decimal amount.
func CentsToCurrency(cents int64) float64 {
	return roundCents(float64(cents) / centsPerUnit)
}

func roundCents(v float64) float64 {
	return math.Round(v*centsPerUnit) / centsPerUnit
}

// ParseInt64 parses s as an integer, returning 0 when s is empty, not a number, or
// outside the int64 range. Decimal strings are truncated.
func ParseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	// float64(MaxInt64) rounds up to 2^63.
	if err != nil || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}

// ParseFloat parses s as a float, returning 0 when s is empty or not a finite number.
func ParseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Ratio divides part by total, returning 0 for an empty total.
func Ratio(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total
}
