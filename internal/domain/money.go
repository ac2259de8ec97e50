package domain

import "fmt"

// FormatPaise renders a paise amount as a rupee display string ("1178.82").
// Used only at the presentation boundary; all computation stays in int64 paise.
func FormatPaise(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// RateBpsToPercent renders a basis-point GST rate as a percent display string
// ("18" or "12.5").
func RateBpsToPercent(rateBps int64) string {
	if rateBps%100 == 0 {
		return fmt.Sprintf("%d", rateBps/100)
	}
	s := fmt.Sprintf("%d.%02d", rateBps/100, rateBps%100)
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}
