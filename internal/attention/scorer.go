package attention

import (
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// RelevanceScorer maps every token to one scalar relevance score with a
// per-token two layer network: score = out(relu(hidden(x))).
type RelevanceScorer struct {
	Dim, Hidden int

	hidden *Linear
	out    *Linear
}

// NewRelevanceScorer builds a scorer for tokens of width dim. A hidden width
// of zero defaults to dim.
func NewRelevanceScorer(dim, hidden int) (*RelevanceScorer, error) {
	if hidden == 0 {
		hidden = dim
	}
	if dim <= 0 || hidden <= 0 {
		return nil, configErrorf("scorer dims must be positive (dim=%d hidden=%d)", dim, hidden)
	}
	return &RelevanceScorer{
		Dim:    dim,
		Hidden: hidden,
		hidden: NewLinear(dim, hidden),
		out:    NewLinear(hidden, 1),
	}, nil
}

// Init fills the scorer weights from seed.
func (s *RelevanceScorer) Init(seed int64) {
	s.hidden.Init(seed)
	s.out.Init(seed + 1)
}

// Score returns a (B, N, 1) tensor of relevance scores for x.
func (s *RelevanceScorer) Score(x tensor.Batch) (tensor.Batch, error) {
	if x.D != s.Dim {
		return tensor.Batch{}, shapeErrorf("scorer expects width %d, got %d", s.Dim, x.D)
	}
	scores := tensor.NewBatch(x.B, x.N, 1)
	err := forEachExample(x.B, func(b int) error {
		ex := x.Example(b)
		h, err := s.hidden.Forward(&ex)
		if err != nil {
			return err
		}
		for i := 0; i < h.R; i++ {
			tensor.Relu(h.Row(i))
		}
		dst := scores.Example(b)
		tensor.MatMulT(&dst, &h, &s.out.W, s.out.Bias)
		return nil
	})
	if err != nil {
		return tensor.Batch{}, err
	}
	return scores, nil
}

// Params lists the scorer weights under prefix.
func (s *RelevanceScorer) Params(prefix string) []tensor.Param {
	return append(s.hidden.Params(prefix+".hidden"), s.out.Params(prefix+".out")...)
}
