package vision

import (
	"fmt"

	"github.com/samcharles93/sparsevit/internal/attention"
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// ExtractPatches cuts a feature map into non-overlapping size x size
// patches, row-major over the grid, each flattened as (dy, dx, channel).
// The result is (B, (H/size)*(W/size), size*size*C).
func ExtractPatches(in Images, size int) (tensor.Batch, error) {
	if size <= 0 || in.H%size != 0 || in.W%size != 0 {
		return tensor.Batch{}, attention.ConfigErrorf("patch size %d does not divide %dx%d", size, in.H, in.W)
	}
	gh, gw := in.H/size, in.W/size
	dim := size * size * in.C
	out := tensor.NewBatch(in.B, gh*gw, dim)
	for b := 0; b < in.B; b++ {
		ex := out.Example(b)
		for py := 0; py < gh; py++ {
			for px := 0; px < gw; px++ {
				row := ex.Row(py*gw + px)
				i := 0
				for dy := 0; dy < size; dy++ {
					off := in.At(b, py*size+dy, px*size, 0)
					n := size * in.C
					copy(row[i:i+n], in.Data[off:off+n])
					i += n
				}
			}
		}
	}
	return out, nil
}

// PatchEmbedding projects flattened patches to the embedding width and adds
// a learned per-position offset.
type PatchEmbedding struct {
	NumPatches int
	PatchDim   int
	EmbedDim   int

	proj     *attention.Linear
	position tensor.Mat // (NumPatches x EmbedDim)
}

// NewPatchEmbedding allocates the projection and positional table.
func NewPatchEmbedding(numPatches, patchDim, embedDim int) (*PatchEmbedding, error) {
	if numPatches <= 0 || patchDim <= 0 || embedDim <= 0 {
		return nil, attention.ConfigErrorf("patch embedding dims must be positive (patches=%d patch_dim=%d embed=%d)", numPatches, patchDim, embedDim)
	}
	return &PatchEmbedding{
		NumPatches: numPatches,
		PatchDim:   patchDim,
		EmbedDim:   embedDim,
		proj:       attention.NewLinear(patchDim, embedDim),
		position:   tensor.NewMat(numPatches, embedDim),
	}, nil
}

// Init fills the projection and positions from seed.
func (p *PatchEmbedding) Init(seed int64) {
	p.proj.Init(seed)
	tensor.FillRandVec(p.position.Data, seed+1, 0.02)
}

// Params lists the embedding weights under "embed.".
func (p *PatchEmbedding) Params() []tensor.Param {
	return append(p.proj.Params("embed.proj"), tensor.MatParam("embed.position", &p.position))
}

// Forward returns S0, shaped (B, NumPatches, EmbedDim).
func (p *PatchEmbedding) Forward(patches tensor.Batch) (tensor.Batch, error) {
	if patches.N != p.NumPatches || patches.D != p.PatchDim {
		return tensor.Batch{}, attention.ShapeErrorf("patches are %v, want (B, %d, %d)", patches, p.NumPatches, p.PatchDim)
	}
	out := tensor.NewBatch(patches.B, p.NumPatches, p.EmbedDim)
	for b := 0; b < patches.B; b++ {
		ex := patches.Example(b)
		emb, err := p.proj.Forward(&ex)
		if err != nil {
			return tensor.Batch{}, fmt.Errorf("embed example %d: %w", b, err)
		}
		tensor.Add(emb.Data, p.position.Data)
		copy(out.Example(b).Data, emb.Data)
	}
	return out, nil
}
