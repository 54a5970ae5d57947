// Package utils holds small helpers shared by the scorer and the CLI.
package utils

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// WaitFor blocks for d or until ctx is done.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TruncateForLog shortens s to limit runes for log previews. Line breaks are
// folded into spaces so multi-line model output stays on one log line.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// FormatNaira renders an amount in kobo the way the screens show wages,
// e.g. 800000 as "₦8,000".
func FormatNaira(kobo int64) string {
	naira := kobo / 100
	sign := ""
	if naira < 0 {
		sign = "-"
		naira = -naira
	}
	digits := strconv.FormatInt(naira, 10)
	var b strings.Builder
	b.WriteString(sign)
	b.WriteString("₦")
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(digits[i])
	}
	return b.String()
}
