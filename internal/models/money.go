package models

import (
	"math/big"
	"strings"
)

// WeiPerEther is the minor-to-major unit ratio. All on-chain prices are
// minor-unit integers; conversion exists only for display.
var WeiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatMajorUnits renders a minor-unit amount as a major-unit decimal string
// with trailing zeros trimmed (1e18 -> "1", 15e17 -> "1.5").
func FormatMajorUnits(minor *big.Int) string {
	if minor == nil {
		return "0"
	}
	return formatRat(new(big.Rat).SetFrac(minor, WeiPerEther))
}

// DisplayPrice converts a minor-unit price to the fiat-like display figure:
// major units scaled by the fixed display factor. The canonical value for any
// transaction remains the minor-unit integer.
func DisplayPrice(minor *big.Int, factor int64) string {
	if minor == nil {
		return "0"
	}
	rat := new(big.Rat).SetFrac(minor, WeiPerEther)
	rat.Mul(rat, new(big.Rat).SetInt64(factor))
	return formatRat(rat)
}

func formatRat(rat *big.Rat) string {
	if rat.IsInt() {
		return rat.Num().String()
	}
	s := rat.FloatString(6)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
