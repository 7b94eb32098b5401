package attention

import (
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// DilatedConfig configures a DilatedAttention layer.
//
// DilationRate is reserved: unless Strided is set it does not change which
// tokens attend to each other. With Strided, query i only sees keys j where
// |i-j| is a multiple of DilationRate.
type DilatedConfig struct {
	Dim          int
	Heads        int
	KeyDim       int
	DilationRate int
	Strided      bool
}

// DilatedAttention is multi-head scaled dot-product self-attention over the
// full token sequence.
type DilatedAttention struct {
	cfg  DilatedConfig
	proj projections
	conn connectivity
}

// NewDilatedAttention validates cfg and allocates the projections.
func NewDilatedAttention(cfg DilatedConfig) (*DilatedAttention, error) {
	if cfg.DilationRate <= 0 {
		return nil, configErrorf("dilation_rate must be positive, got %d", cfg.DilationRate)
	}
	proj, err := newProjections(cfg.Dim, cfg.Heads, cfg.KeyDim)
	if err != nil {
		return nil, err
	}
	a := &DilatedAttention{cfg: cfg, proj: proj}
	if cfg.Strided && cfg.DilationRate > 1 {
		rate := cfg.DilationRate
		a.conn = func(i, j int) bool {
			d := i - j
			if d < 0 {
				d = -d
			}
			return d%rate == 0
		}
	}
	return a, nil
}

// Config returns the validated configuration.
func (a *DilatedAttention) Config() DilatedConfig { return a.cfg }

// OutputWidth is Heads*KeyDim.
func (a *DilatedAttention) OutputWidth() int { return a.cfg.Heads * a.cfg.KeyDim }

// Init fills the projections from seed.
func (a *DilatedAttention) Init(seed int64) { a.proj.init(seed) }

// Params lists the layer weights under prefix.
func (a *DilatedAttention) Params(prefix string) []tensor.Param {
	return a.proj.params(prefix)
}

// Forward attends over every token of x and returns (B, N, Heads*KeyDim).
func (a *DilatedAttention) Forward(x tensor.Batch) (tensor.Batch, error) {
	out, _, err := a.forward(x, false)
	return out, err
}

// ForwardWithWeights is Forward that also returns the attention weights,
// indexed [example][head].
func (a *DilatedAttention) ForwardWithWeights(x tensor.Batch) (tensor.Batch, [][]tensor.Mat, error) {
	return a.forward(x, true)
}

func (a *DilatedAttention) forward(x tensor.Batch, keepWeights bool) (tensor.Batch, [][]tensor.Mat, error) {
	if x.D != a.cfg.Dim {
		return tensor.Batch{}, nil, shapeErrorf("dilated attention expects width %d, got %d", a.cfg.Dim, x.D)
	}
	out := tensor.NewBatch(x.B, x.N, a.OutputWidth())
	var weights [][]tensor.Mat
	if keepWeights {
		weights = make([][]tensor.Mat, x.B)
	}
	err := forEachExample(x.B, func(b int) error {
		ex := x.Example(b)
		var ws *[]tensor.Mat
		if keepWeights {
			ws = &weights[b]
		}
		res, err := a.proj.attend(&ex, a.conn, ws)
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
