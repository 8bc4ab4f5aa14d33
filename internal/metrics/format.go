package metrics

import "strconv"

// HBytes == "human bytes"
func HBytes(i uint64) string {
	switch {
	case i < 1e3:
		return strconv.FormatUint(i, 10) + "B"
	case i < 1e6:
		return strconv.FormatFloat(float64(i)/1e3, 'f', 2, 64) + "KB"
	case i < 1e9:
		return strconv.FormatFloat(float64(i)/1e6, 'f', 2, 64) + "MB"
	case i < 1e12:
		return strconv.FormatFloat(float64(i)/1e9, 'f', 2, 64) + "GB"
	default:
		return strconv.FormatFloat(float64(i)/1e12, 'f', 2, 64) + "TB"
	}
}

// HCount == "human count"
func HCount(i uint64) string {
	switch {
	case i < 1e3:
		return strconv.FormatUint(i, 10)
	case i < 1e6:
		return strconv.FormatFloat(float64(i)/1e3, 'f', 2, 64) + "K"
	case i < 1e9:
		return strconv.FormatFloat(float64(i)/1e6, 'f', 2, 64) + "M"
	default:
		return strconv.FormatFloat(float64(i)/1e9, 'f', 2, 64) + "G"
	}
}

// HRate == "human rate"
func HRate(f float64) string {
	switch {
	case f < 1e3:
		return strconv.FormatFloat(f, 'f', 2, 64)
	case f < 1e6:
		return strconv.FormatFloat(f/1e3, 'f', 2, 64) + "K"
	case f < 1e9:
		return strconv.FormatFloat(f/1e6, 'f', 2, 64) + "M"
	default:
		return strconv.FormatFloat(f/1e9, 'f', 2, 64) + "G"
	}
}
