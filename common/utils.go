package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: the values to check
//
// Returns:
//   - T: the first non-zero value, or the zero value
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// PrefixSum computes the exclusive prefix sum of values in 64 bits, so sums of u32 values never
// wrap. offsets[i] is the sum of values[0:i] and total is the sum of all values.
//
// Parameters:
//   - values: the per-entry sizes
//
// Returns:
//   - []uint64: exclusive offsets, one per entry
//   - uint64: the sum of all entries
func PrefixSum(values []uint32) ([]uint64, uint64) {
	offsets := make([]uint64, len(values))
	var total uint64
	for i, v := range values {
		offsets[i] = total
		total += uint64(v)
	}
	return offsets, total
}

// AlignUp rounds v up to the next multiple of align. align must be a power of two.
//
// Parameters:
//   - v: the value to round
//   - align: the power-of-two alignment
//
// Returns:
//   - uint64: the aligned value
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
