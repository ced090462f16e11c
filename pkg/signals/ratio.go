package signals

import (
	"fmt"
	"math/big"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// Ratio is an exact non-negative fraction Num/Den with Den > 0.
// Threshold checks compare ratios by cross-multiplication so no float rounding
// can flip a decision at a boundary.
type Ratio struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// NewRatio returns num/den, or None when den is not positive or num is negative.
func NewRatio(num, den int64) contracts.Optional[Ratio] {
	if den <= 0 || num < 0 {
		return contracts.None[Ratio]()
	}
	return contracts.Some(Ratio{Num: num, Den: den})
}

// Cmp compares r with n/d (d > 0). It returns -1, 0 or +1.
func (r Ratio) Cmp(n, d int64) int {
	lhs := new(big.Int).Mul(big.NewInt(r.Num), big.NewInt(d))
	rhs := new(big.Int).Mul(big.NewInt(n), big.NewInt(r.Den))
	return lhs.Cmp(rhs)
}

// CmpMilli compares r with milli/1000.
func (r Ratio) CmpMilli(milli int64) int {
	return r.Cmp(milli, 1000)
}

// CmpBasisPoints compares r with bps/10000. One percent is 100 basis points.
func (r Ratio) CmpBasisPoints(bps int64) int {
	return r.Cmp(bps, 10000)
}

// Scaled returns round(r * scale), rounding half up.
func (r Ratio) Scaled(scale int64) int64 {
	n := new(big.Int).Mul(big.NewInt(r.Num), big.NewInt(scale))
	n.Mul(n, big.NewInt(2))
	n.Add(n, big.NewInt(r.Den))
	n.Quo(n, big.NewInt(2*r.Den))
	return n.Int64()
}

// MulMoney returns round(m * r) in minor units.
func (r Ratio) MulMoney(m contracts.Money) contracts.Money {
	return contracts.Money(r.Scaled(int64(m)))
}

// Float returns an approximation for display and metrics only.
func (r Ratio) Float() float64 {
	f, _ := new(big.Rat).SetFrac64(r.Num, r.Den).Float64()
	return f
}

// Percent formats r as a percentage with two decimals, e.g. "0.60%".
func (r Ratio) Percent() string {
	return FormatBasisPoints(r.Scaled(10000))
}

// Multiple formats r as a multiplier with two decimals, e.g. "2.00x".
func (r Ratio) Multiple() string {
	h := r.Scaled(100)
	return fmt.Sprintf("%d.%02dx", h/100, h%100)
}

// FormatBasisPoints renders bps as a percentage, e.g. 100 -> "1.00%".
func FormatBasisPoints(bps int64) string {
	return fmt.Sprintf("%d.%02d%%", bps/100, bps%100)
}

// FormatMilli renders a milli-unit multiplier, e.g. 1500 -> "1.50x".
func FormatMilli(milli int64) string {
	h := (milli + 5) / 10
	return fmt.Sprintf("%d.%02dx", h/100, h%100)
}

// CTR is clicks/impressions, absent with no impressions.
func CTR(m contracts.PerformanceMetric) contracts.Optional[Ratio] {
	return NewRatio(m.Clicks, m.Impressions)
}

// ROAS is revenue/spend, absent when spend is zero.
func ROAS(m contracts.PerformanceMetric) contracts.Optional[Ratio] {
	return NewRatio(int64(m.Revenue), int64(m.Spend))
}

// CPC is spend per click in minor units, absent with no clicks.
func CPC(m contracts.PerformanceMetric) contracts.Optional[Ratio] {
	return NewRatio(int64(m.Spend), m.Clicks)
}

// DisplayRatio formats an optional ratio with f, or "n/a" when absent.
func DisplayRatio(o contracts.Optional[Ratio], f func(Ratio) string) string {
	r, ok := o.Get()
	if !ok {
		return "n/a"
	}
	return f(r)
}
