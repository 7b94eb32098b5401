package attention

import (
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// DefaultMaxGlobalTokens bounds GlobalTokens when a config leaves
// MaxGlobalTokens unset. Attention weights grow with GlobalTokens² x heads.
const DefaultMaxGlobalTokens = 1024

// SparseConfig configures a SparseAttention layer.
type SparseConfig struct {
	Dim             int // input width
	Heads           int
	KeyDim          int
	GlobalTokens    int // k, tokens kept per example
	MaxGlobalTokens int
}

// SparseAttention is self-attention restricted to the k most relevant
// tokens. Relevance comes from scores supplied by the caller, never from the
// layer's own input, so repeated passes agree on the ranking.
type SparseAttention struct {
	cfg  SparseConfig
	proj projections
}

// NewSparseAttention validates cfg and allocates the projections.
func NewSparseAttention(cfg SparseConfig) (*SparseAttention, error) {
	if cfg.MaxGlobalTokens == 0 {
		cfg.MaxGlobalTokens = DefaultMaxGlobalTokens
	}
	if cfg.GlobalTokens <= 0 {
		return nil, configErrorf("global_tokens must be positive, got %d", cfg.GlobalTokens)
	}
	if cfg.GlobalTokens > cfg.MaxGlobalTokens {
		return nil, configErrorf("global_tokens %d exceeds limit %d", cfg.GlobalTokens, cfg.MaxGlobalTokens)
	}
	proj, err := newProjections(cfg.Dim, cfg.Heads, cfg.KeyDim)
	if err != nil {
		return nil, err
	}
	return &SparseAttention{cfg: cfg, proj: proj}, nil
}

// Config returns the validated configuration.
func (a *SparseAttention) Config() SparseConfig { return a.cfg }

// OutputWidth is Heads*KeyDim.
func (a *SparseAttention) OutputWidth() int { return a.cfg.Heads * a.cfg.KeyDim }

// Init fills the projections from seed.
func (a *SparseAttention) Init(seed int64) { a.proj.init(seed) }

// Params lists the layer weights under prefix.
func (a *SparseAttention) Params(prefix string) []tensor.Param {
	return a.proj.params(prefix)
}

// Selection returns the token indices this layer attends over for a
// sequence of n tokens ranked by scores.
func (a *SparseAttention) Selection(scores []float32, n int) ([]int, error) {
	return selectIndices(scores, n, a.cfg.GlobalTokens)
}

// Forward gathers the selected tokens of x and attends over them. scores is
// the (B, M, 1) relevance tensor of the original sequence. The result is
// (B, min(k, N), Heads*KeyDim).
func (a *SparseAttention) Forward(x, scores tensor.Batch) (tensor.Batch, error) {
	out, _, err := a.forward(x, scores, false)
	return out, err
}

// ForwardWithWeights is Forward that also returns the attention weights,
// indexed [example][head].
func (a *SparseAttention) ForwardWithWeights(x, scores tensor.Batch) (tensor.Batch, [][]tensor.Mat, error) {
	return a.forward(x, scores, true)
}

func (a *SparseAttention) forward(x, scores tensor.Batch, keepWeights bool) (tensor.Batch, [][]tensor.Mat, error) {
	if x.D != a.cfg.Dim {
		return tensor.Batch{}, nil, shapeErrorf("sparse attention expects width %d, got %d", a.cfg.Dim, x.D)
	}
	if scores.B != x.B || scores.D != 1 {
		return tensor.Batch{}, nil, shapeErrorf("scores %v do not match input %v", scores, x)
	}

	// Validate every example's selection before gathering anything.
	selections := make([][]int, x.B)
	for b := range selections {
		sel, err := a.Selection(scores.Example(b).Data, x.N)
		if err != nil {
			return tensor.Batch{}, nil, err
		}
		selections[b] = sel
	}

	k := min(a.cfg.GlobalTokens, x.N)
	out := tensor.NewBatch(x.B, k, a.OutputWidth())
	var weights [][]tensor.Mat
	if keepWeights {
		weights = make([][]tensor.Mat, x.B)
	}
	err := forEachExample(x.B, func(b int) error {
		ex := x.Example(b)
		sub := ex.Gather(selections[b])
		var ws *[]tensor.Mat
		if keepWeights {
			ws = &weights[b]
		}
		res, err := a.proj.attend(&sub, nil, ws)
		if err != nil {
			return err
		}
		copy(out.Example(b).Data, res.Data)
		return nil
	})
	if err != nil {
		return tensor.Batch{}, nil, err
	}
	return out, weights, nil
}
