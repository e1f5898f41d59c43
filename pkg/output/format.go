package output

import "strconv"

func formatSci(v float64) string {
	return strconv.FormatFloat(v, 'e', 3, 64)
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
