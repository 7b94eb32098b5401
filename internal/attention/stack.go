package attention

import (
	"fmt"

	"github.com/samcharles93/sparsevit/internal/tensor"
)

// StackConfig configures the attention stack.
type StackConfig struct {
	EmbedDim        int
	Heads           int
	KeyDim          int
	GlobalTokens    int
	MaxGlobalTokens int
	ScorerHidden    int
	DilationRate    int
	StridedDilation bool
}

// Validate checks the hyperparameters without allocating any layer.
func (c StackConfig) Validate() error {
	switch {
	case c.EmbedDim <= 0:
		return configErrorf("embed_dim must be positive, got %d", c.EmbedDim)
	case c.Heads <= 0:
		return configErrorf("heads must be positive, got %d", c.Heads)
	case c.KeyDim <= 0:
		return configErrorf("key_dim must be positive, got %d", c.KeyDim)
	case c.GlobalTokens <= 0:
		return configErrorf("global_tokens must be positive, got %d", c.GlobalTokens)
	case c.MaxGlobalTokens > 0 && c.GlobalTokens > c.MaxGlobalTokens:
		return configErrorf("global_tokens %d exceeds limit %d", c.GlobalTokens, c.MaxGlobalTokens)
	case c.DilationRate <= 0:
		return configErrorf("dilation_rate must be positive, got %d", c.DilationRate)
	case c.ScorerHidden < 0:
		return configErrorf("scorer_hidden must not be negative, got %d", c.ScorerHidden)
	}
	return validateHeads(c.EmbedDim, c.Heads, c.KeyDim)
}

// Stack runs the fixed two-stage attention protocol:
//
//	S1 = sparse(S0)   S2 = sparse(S1)
//	S3 = dilated(S2)  S4 = dilated(S3)
//	S5 = S2 + S4      S6 = sparse(S5)
//
// Relevance scores are computed once from S0 and drive all three sparse
// passes.
type Stack struct {
	cfg     StackConfig
	Scorer  *RelevanceScorer
	Sparse  [3]*SparseAttention
	Dilated [2]*DilatedAttention
}

// Trace holds every stage of one forward pass.
type Trace struct {
	Scores tensor.Batch
	Stages [7]tensor.Batch // S0..S6
}

// Output is the final stage handed to the classifier.
func (t *Trace) Output() tensor.Batch { return t.Stages[6] }

// NewStack validates cfg and allocates every layer with zero weights.
func NewStack(cfg StackConfig) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stack{cfg: cfg}
	var err error
	if s.Scorer, err = NewRelevanceScorer(cfg.EmbedDim, cfg.ScorerHidden); err != nil {
		return nil, err
	}
	width := cfg.Heads * cfg.KeyDim
	for i := range s.Sparse {
		dim := width
		if i == 0 {
			dim = cfg.EmbedDim
		}
		s.Sparse[i], err = NewSparseAttention(SparseConfig{
			Dim:             dim,
			Heads:           cfg.Heads,
			KeyDim:          cfg.KeyDim,
			GlobalTokens:    cfg.GlobalTokens,
			MaxGlobalTokens: cfg.MaxGlobalTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("sparse %d: %w", i, err)
		}
	}
	for i := range s.Dilated {
		s.Dilated[i], err = NewDilatedAttention(DilatedConfig{
			Dim:          width,
			Heads:        cfg.Heads,
			KeyDim:       cfg.KeyDim,
			DilationRate: cfg.DilationRate,
			Strided:      cfg.StridedDilation,
		})
		if err != nil {
			return nil, fmt.Errorf("dilated %d: %w", i, err)
		}
	}
	return s, nil
}

// Config returns the validated configuration.
func (s *Stack) Config() StackConfig { return s.cfg }

// Init fills every layer deterministically from seed.
func (s *Stack) Init(seed int64) {
	s.Scorer.Init(seed)
	for i, l := range s.Sparse {
		l.Init(seed + 100*int64(i+1))
	}
	for i, l := range s.Dilated {
		l.Init(seed + 1000*int64(i+1))
	}
}

// Params lists every learned parameter under "stack.".
func (s *Stack) Params() []tensor.Param {
	out := s.Scorer.Params("stack.scorer")
	for i, l := range s.Sparse {
		out = append(out, l.Params(fmt.Sprintf("stack.sparse.%d", i))...)
	}
	for i, l := range s.Dilated {
		out = append(out, l.Params(fmt.Sprintf("stack.dilated.%d", i))...)
	}
	return out
}

// Forward runs the stack on S0 and returns S6, shaped
// (B, min(GlobalTokens, N), Heads*KeyDim).
func (s *Stack) Forward(s0 tensor.Batch) (tensor.Batch, error) {
	tr, err := s.ForwardTrace(s0)
	if err != nil {
		return tensor.Batch{}, err
	}
	return tr.Output(), nil
}

// ForwardTrace runs the stack and keeps every intermediate stage.
func (s *Stack) ForwardTrace(s0 tensor.Batch) (*Trace, error) {
	scores, err := s.Scorer.Score(s0)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	tr := &Trace{Scores: scores}
	tr.Stages[0] = s0

	if tr.Stages[1], err = s.Sparse[0].Forward(s0, scores); err != nil {
		return nil, fmt.Errorf("stage 1: %w", err)
	}
	if tr.Stages[2], err = s.Sparse[1].Forward(tr.Stages[1], scores); err != nil {
		return nil, fmt.Errorf("stage 2: %w", err)
	}
	if tr.Stages[3], err = s.Dilated[0].Forward(tr.Stages[2]); err != nil {
		return nil, fmt.Errorf("stage 3: %w", err)
	}
	if tr.Stages[4], err = s.Dilated[1].Forward(tr.Stages[3]); err != nil {
		return nil, fmt.Errorf("stage 4: %w", err)
	}
	if tr.Stages[5], err = Combine(tr.Stages[2], tr.Stages[4]); err != nil {
		return nil, fmt.Errorf("stage 5: %w", err)
	}
	if tr.Stages[6], err = s.Sparse[2].Forward(tr.Stages[5], scores); err != nil {
		return nil, fmt.Errorf("stage 6: %w", err)
	}
	return tr, nil
}
