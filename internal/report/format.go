package report

import (
	"fmt"
	"math"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatValue formats a portfolio value with four decimals, or "-" when it
// is not a finite number.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

// FormatOptional formats a nullable metric, "-" when nil.
func FormatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return FormatValue(*v)
}

// FormatReturn formats a fractional return as "+X.X%" or "-X.X%". Drops the
// decimal for magnitudes of 100% or more to keep width compact.
func FormatReturn(r float64) string {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return "-"
	}
	pct := r * 100
	sign := "+"
	if pct < 0 {
		sign = "-"
		pct = -pct
	}
	if pct >= 100 {
		return fmt.Sprintf("%s%.0f%%", sign, pct)
	}
	return fmt.Sprintf("%s%.1f%%", sign, pct)
}
