package conv

// AlignHi rounds v up to a multiple of a.
func AlignHi(v, a int) int {
	return (v + a - 1) / a * a
}

// DivHi divides rounding up.
func DivHi(v, d int) int {
	return (v + d - 1) / d
}

// Pow2Hi returns the smallest power of two not less than v.
func Pow2Hi(v int) int {
	n := 1
	for n < v {
		n <<= 1
	}
	return n
}
