package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/sparsevit/internal/config"
	"github.com/samcharles93/sparsevit/internal/logger"
	"github.com/samcharles93/sparsevit/internal/model"
	"github.com/samcharles93/sparsevit/internal/version"
	"github.com/samcharles93/sparsevit/internal/vision"
)

// DefaultMaxImages caps the batch size of one classify request.
const DefaultMaxImages = 32

// Classifier is the model surface the server needs.
type Classifier interface {
	Config() config.Model
	NumParams() int
	Classify(ctx context.Context, images vision.Images, topK int) ([][]model.Prediction, error)
}

type Server struct {
	model     Classifier
	labels    []string
	maxImages int
	log       logger.Logger
	clock     func() time.Time
}

type Option func(*Server)

// WithLabels names classes in responses; missing names fall back to
// "class_<i>".
func WithLabels(labels []string) Option {
	return func(s *Server) { s.labels = labels }
}

func WithMaxImages(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxImages = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

func NewServer(m Classifier, opts ...Option) *Server {
	s := &Server{
		model:     m,
		maxImages: DefaultMaxImages,
		log:       logger.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/model", s.handleModel)
	e.POST("/v1/classify", s.handleClassify)
}

func (s *Server) label(i int) string {
	return config.Config{Labels: s.labels}.Label(i)
}

func (s *Server) handleHealth(c *echo.Context) error {
	if s.model == nil {
		return writeJSON(c, http.StatusServiceUnavailable, HealthResponse{Status: "no model"})
	}
	return writeJSON(c, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleModel(c *echo.Context) error {
	if s.model == nil {
		return writeError(c, http.StatusServiceUnavailable, "server_error", "model not loaded", "")
	}
	cfg := s.model.Config()
	tokens := cfg.NumPatches()
	return writeJSON(c, http.StatusOK, ModelResponse{
		Object:     "model",
		Config:     cfg,
		Labels:     s.labels,
		Tokens:     tokens,
		Selected:   min(tokens, cfg.GlobalTokens),
		Parameters: s.model.NumParams(),
		Version:    version.String(),
	})
}

func (s *Server) handleClassify(c *echo.Context) error {
	if s.model == nil {
		return writeError(c, http.StatusServiceUnavailable, "server_error", "model not loaded", "")
	}
	req, err := decodeJSON[ClassifyRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}
	switch {
	case len(req.Images) == 0:
		return writeBadRequest(c, "images must not be empty", "images")
	case len(req.Images) > s.maxImages:
		return writeBadRequest(c, fmt.Sprintf("at most %d images per request, got %d", s.maxImages, len(req.Images)), "images")
	case req.TopK < 0:
		return writeBadRequest(c, "top_k must not be negative", "top_k")
	}

	cfg := s.model.Config()
	pixels := make([][]float32, len(req.Images))
	for i, img := range req.Images {
		if pixels[i], err = decodeImage(img, cfg.ImageSize, cfg.Channels); err != nil {
			return writeBadRequest(c, err.Error(), fmt.Sprintf("images[%d]", i))
		}
	}
	batch, err := vision.StackImages(cfg.ImageSize, cfg.ImageSize, cfg.Channels, pixels...)
	if err != nil {
		status, typ := statusFor(err)
		return writeError(c, status, typ, err.Error(), "images")
	}

	id := newRequestID()
	log := s.log.With("request_id", id)
	ctx := logger.WithContext(c.Request().Context(), log)
	start := s.clock()
	preds, err := s.model.Classify(ctx, batch, req.TopK)
	if err != nil {
		status, typ := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("classify failed", "error", err)
		}
		return writeError(c, status, typ, err.Error(), "")
	}
	log.Info("classified", "images", batch.B, "elapsed", s.clock().Sub(start))

	resp := ClassifyResponse{
		ID:        id,
		Object:    "classification",
		CreatedAt: start.Unix(),
		Results:   make([]ImageResult, len(preds)),
	}
	for i, ps := range preds {
		out := make([]LabeledPrediction, len(ps))
		for j, p := range ps {
			out[j] = LabeledPrediction{Class: p.Class, Label: s.label(p.Class), Prob: p.Prob}
		}
		resp.Results[i] = ImageResult{Index: i, Predictions: out}
	}
	return writeJSON(c, http.StatusOK, resp)
}
