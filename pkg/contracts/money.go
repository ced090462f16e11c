package contracts

import "fmt"

// Money is an amount in integer minor currency units (cents).
// All arithmetic and threshold comparisons stay in minor units; conversion to
// a decimal string happens only at presentation.
type Money int64

// Dollars builds a Money from whole major units.
func Dollars(d int64) Money {
	return Money(d * 100)
}

// Cents returns the raw minor-unit amount.
func (m Money) Cents() int64 {
	return int64(m)
}

// PercentOf returns pct% of m, rounded half away from zero.
func (m Money) PercentOf(pct int64) Money {
	return Money(divRound(int64(m)*pct, 100))
}

// String renders the amount as "$1,234.56".
func (m Money) String() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%s.%02d", sign, groupThousands(v/100), v%100)
}

func groupThousands(v int64) string {
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}

// divRound divides with rounding half away from zero. d must be positive.
func divRound(n, d int64) int64 {
	if n < 0 {
		return -((-n + d/2) / d)
	}
	return (n + d/2) / d
}
