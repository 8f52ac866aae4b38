package report

import (
	"fmt"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
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

// FormatMoney formats a monetary value with comma separators and two
// decimals.
func FormatMoney(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := int(v)
	frac := v - float64(whole)
	s := fmt.Sprintf("%s.%02d", FormatInt(whole), int(frac*100+0.5))
	if neg {
		return "-" + s
	}
	return s
}

// FormatPct formats a fraction as a signed percentage: 0.0512 -> "+5.12%".
func FormatPct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

// FormatRatio formats a 0-1 ratio as an unsigned percentage: 0.5 -> "50.0%".
func FormatRatio(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
