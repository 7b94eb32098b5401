package attention

import (
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// SplitHeads reshapes an (n x heads*keyDim) projection into heads matrices
// of shape (n x keyDim). Head h holds columns [h*keyDim, (h+1)*keyDim).
func SplitHeads(x *tensor.Mat, heads, keyDim int) ([]tensor.Mat, error) {
	if heads <= 0 || keyDim <= 0 || x.C != heads*keyDim {
		return nil, shapeErrorf("cannot split width %d into %d heads of %d", x.C, heads, keyDim)
	}
	out := make([]tensor.Mat, heads)
	for h := range out {
		out[h] = tensor.NewMat(x.R, keyDim)
		for i := 0; i < x.R; i++ {
			copy(out[h].Row(i), x.Row(i)[h*keyDim:(h+1)*keyDim])
		}
	}
	return out, nil
}

// MergeHeads is the inverse of SplitHeads.
func MergeHeads(hs []tensor.Mat) (tensor.Mat, error) {
	if len(hs) == 0 {
		return tensor.Mat{}, shapeErrorf("no heads to merge")
	}
	n, keyDim := hs[0].R, hs[0].C
	for h := range hs {
		if hs[h].R != n || hs[h].C != keyDim {
			return tensor.Mat{}, shapeErrorf("head %d is (%d, %d), want (%d, %d)", h, hs[h].R, hs[h].C, n, keyDim)
		}
	}
	out := tensor.NewMat(n, len(hs)*keyDim)
	for h := range hs {
		for i := 0; i < n; i++ {
			copy(out.Row(i)[h*keyDim:(h+1)*keyDim], hs[h].Row(i))
		}
	}
	return out, nil
}

func validateHeads(width, heads, keyDim int) error {
	if heads <= 0 || keyDim <= 0 {
		return configErrorf("heads (%d) and key_dim (%d) must be positive", heads, keyDim)
	}
	if width != heads*keyDim {
		return configErrorf("projection width %d is not %d heads x %d", width, heads, keyDim)
	}
	return nil
}
