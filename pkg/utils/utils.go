package utils

// ValidateContent checks seed content bounds.
func ValidateContent(content string) bool {
	if len(content) == 0 || len(content) > 65536 {
		return false
	}
	return true
}

// Clamp bounds v into [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
