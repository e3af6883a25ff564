package query

import (
	"github.com/shopspring/decimal"

	"DexSettle/internal/pip"
)

// FormatPip renders a pip-scaled quantity as a decimal string.
func FormatPip(v int64) string {
	return decimal.New(v, -int32(pip.Decimals)).String()
}

// FormatPrice renders a quote/base ratio as a decimal string. Returns
// "0" when base is zero to avoid a division panic on empty pools.
func FormatPrice(quote, base int64) string {
	if base == 0 {
		return "0"
	}
	q := decimal.New(quote, 0)
	b := decimal.New(base, 0)
	return q.DivRound(b, int32(pip.Decimals)).String()
}
