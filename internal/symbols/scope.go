package symbols

// InRanges reports whether a byte offset falls inside any of the sorted,
// merged ranges produced by NonCodeRanges.
func InRanges(offset int, ranges [][2]int) bool {
	lo, hi := 0, len(ranges)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case offset < ranges[mid][0]:
			hi = mid - 1
		case offset >= ranges[mid][1]:
			lo = mid + 1
		default:
			return true
		}
	}
	return false
}
