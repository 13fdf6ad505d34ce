package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxPlainWidth is the longest plain rendering kept before switching to
// scientific notation
const maxPlainWidth = 6

// TickFormatter returns a formatter that prints values with the precision of
// ref when ref fits in maxPlainWidth characters, otherwise in %.1e.
func TickFormatter(ref float64) func(float64) string {
	s := plainFloat(ref)
	if len(s) > maxPlainWidth || strings.ContainsAny(s, "en") {
		return func(v float64) string {
			if math.IsNaN(v) {
				return "nan"
			}
			return fmt.Sprintf("%.1e", v)
		}
	}
	decimals := 0
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		decimals = len(s) - dot - 1
	}
	return func(v float64) string {
		if math.IsNaN(v) {
			return "nan"
		}
		return strconv.FormatFloat(v, 'f', decimals, 64)
	}
}

// FormatTick formats a value with its own precision
func FormatTick(v float64) string {
	return TickFormatter(v)(v)
}

// plainFloat is the shortest round-trip rendering, always with a decimal
// point for finite values. Very large or very small magnitudes use exponent
// form.
func plainFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatPercent renders a percent change rounded to an integer, with an
// explicit sign for increases
func FormatPercent(change float64) string {
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return "n/a"
	}
	sign := ""
	if change > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.0f%%", sign, change)
}

// FormatValue renders a table cell; missing values are empty
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
