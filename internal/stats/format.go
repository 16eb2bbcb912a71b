package stats

import "fmt"

// FormatNumber renders a value with six significant digits; nil is "N/A".
func FormatNumber(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.6g", *v)
}

// FormatPercent renders a ratio as a percentage with three significant
// digits; nil is "N/A".
func FormatPercent(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.3g%%", *v*100)
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 { return &v }
