package fusion

// Nearest returns, for every query, the index of the target with the smallest absolute time
// difference. Both slices must be sorted ascending. On equal distance the earlier target wins,
// and among targets sharing a timestamp the first one wins. The result is -1 for every query
// when targets is empty.
//
// The lookup is a single merge pass over both slices.
func Nearest(queries, targets []int64) []int {
	out := make([]int, len(queries))
	if len(targets) == 0 {
		for i := range out {
			out[i] = -1
		}
		return out
	}

	// runStart[i] is the first index holding targets[i]
	runStart := make([]int, len(targets))
	for i := range targets {
		if i > 0 && targets[i] == targets[i-1] {
			runStart[i] = runStart[i-1]
		} else {
			runStart[i] = i
		}
	}

	// j is the number of targets at or before the current query
	j := 0
	for qi, q := range queries {
		for j < len(targets) && targets[j] <= q {
			j++
		}

		best := -1
		if j > 0 {
			best = runStart[j-1]
		}
		if j < len(targets) && (best < 0 || targets[j]-q < q-targets[best]) {
			best = j
		}
		out[qi] = best
	}

	return out
}
