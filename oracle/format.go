package oracle

import (
	"math"
	"strconv"
)

// OracleDecimals is the fixed-point scale expected by on-chain price consumers.
const OracleDecimals = 8

const oracleScale = 1e8

// ToOracle converts a USD price to the 8-decimal fixed-point oracle integer.
// Rounding is half away from zero, matching standard rounding of the
// reference arithmetic.
func ToOracle(price float64) int64 {
	return int64(math.Round(price * oracleScale))
}

// FromOracle converts an oracle integer back to a decimal USD price.
func FromOracle(v int64) float64 {
	return float64(v) / oracleScale
}

// FormatOracle renders the oracle integer as the decimal string used on the
// wire (price8).
func FormatOracle(v int64) string {
	return strconv.FormatInt(v, 10)
}
