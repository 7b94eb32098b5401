package api

import "github.com/samcharles93/sparsevit/internal/config"

// ImageInput is one image of a classify request: either an encoded image
// file (base64) or a raw normalized (height, width, channels) pixel array.
type ImageInput struct {
	Data     string    `json:"data,omitempty"`
	Pixels   []float32 `json:"pixels,omitempty"`
	Height   int       `json:"height,omitempty"`
	Width    int       `json:"width,omitempty"`
	Channels int       `json:"channels,omitempty"`
}

type ClassifyRequest struct {
	Images []ImageInput `json:"images"`
	TopK   int          `json:"top_k,omitempty"`
}

type LabeledPrediction struct {
	Class int     `json:"class"`
	Label string  `json:"label"`
	Prob  float32 `json:"prob"`
}

type ImageResult struct {
	Index       int                 `json:"index"`
	Predictions []LabeledPrediction `json:"predictions"`
}

type ClassifyResponse struct {
	ID        string        `json:"id"`
	Object    string        `json:"object"`
	CreatedAt int64         `json:"created_at"`
	Results   []ImageResult `json:"results"`
}

type ModelResponse struct {
	Object     string       `json:"object"`
	Config     config.Model `json:"config"`
	Labels     []string     `json:"labels,omitempty"`
	Tokens     int          `json:"tokens"`
	Selected   int          `json:"selected"`
	Parameters int          `json:"parameters"`
	Version    string       `json:"version"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

type ErrorResponse struct {
	Error ResponseError `json:"error"`
}
