package attention

import (
	"cmp"
	"slices"
)

// SelectTopK returns the indices of the k highest scores, highest first.
// Equal scores keep their original relative order and NaN ranks last. When k >= len(scores)
// every index is returned in original order. k <= 0 yields nil.
func SelectTopK(scores []float32, k int) []int {
	if k <= 0 {
		return nil
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	if k >= len(scores) {
		return idx
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})
	return idx[:k]
}

// selectIndices picks the rows of an n-token sequence that a sparse pass
// attends over, given m relevance scores for the original sequence.
//
// A sequence that already fits in k tokens is kept whole. A full-length
// sequence is ranked by score. Anything else cannot be mapped onto the
// score ranking.
func selectIndices(scores []float32, n, k int) ([]int, error) {
	if n <= k {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	if n != len(scores) {
		return nil, rangeErrorf("cannot select %d of %d tokens with %d scores", k, n, len(scores))
	}
	return SelectTopK(scores, k), nil
}
