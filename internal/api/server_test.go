package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/sparsevit/internal/config"
	"github.com/samcharles93/sparsevit/internal/logger"
	"github.com/samcharles93/sparsevit/internal/model"
	"github.com/samcharles93/sparsevit/internal/vision"
)

func testConfig() config.Model {
	cfg := config.Default()
	cfg.ImageSize = 32
	cfg.NumClasses = 3
	return cfg
}

func newTestEcho(t *testing.T, m Classifier) *echo.Echo {
	t.Helper()
	server := NewServer(m,
		WithLabels([]string{"cat", "dog"}),
		WithMaxImages(2),
		WithLogger(logger.Discard()),
	)
	e := echo.New()
	server.Register(e)
	return e
}

func newTestModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.New(testConfig())
	require.NoError(t, err)
	m.Init(7)
	return m
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func encodeBody(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func pngBase64(t *testing.T, side int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHealthAndModel(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, newTestModel(t))

	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = doJSON(t, e, http.MethodGet, "/v1/model", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info ModelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, testConfig(), info.Config)
	require.Equal(t, 4, info.Tokens)
	require.Equal(t, 4, info.Selected)
	require.Positive(t, info.Parameters)
}

func TestClassifyPixelsAndPNG(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, newTestModel(t))
	cfg := testConfig()

	body := encodeBody(t, ClassifyRequest{
		TopK: 2,
		Images: []ImageInput{
			{Pixels: make([]float32, cfg.ImageSize*cfg.ImageSize*cfg.Channels), Height: cfg.ImageSize, Width: cfg.ImageSize, Channels: cfg.Channels},
			{Data: pngBase64(t, 20)},
		},
	})
	rec := doJSON(t, e, http.MethodPost, "/v1/classify", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.ID, "cls_"), resp.ID)
	require.Equal(t, "classification", resp.Object)
	require.Len(t, resp.Results, 2)
	for i, r := range resp.Results {
		require.Equal(t, i, r.Index)
		require.Len(t, r.Predictions, 2)
		require.GreaterOrEqual(t, r.Predictions[0].Prob, r.Predictions[1].Prob)
		for _, p := range r.Predictions {
			require.NotEmpty(t, p.Label)
		}
	}
}

func TestClassifyValidation(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, newTestModel(t))
	one := `{"pixels":[1,2,3],"height":1,"width":1,"channels":3}`

	cases := map[string]struct {
		body string
		want string
	}{
		"bad json":     {`{"images":`, "invalid JSON body"},
		"unknown":      {`{"images":[],"colour":1}`, "invalid JSON body"},
		"empty":        {`{"images":[]}`, "images must not be empty"},
		"too many":     {`{"images":[` + one + `,` + one + `,` + one + `]}`, "at most 2 images"},
		"negative k":   {`{"images":[` + one + `],"top_k":-1}`, "top_k must not be negative"},
		"wrong shape":  {`{"images":[` + one + `]}`, "pixels must be shaped (32, 32, 3)"},
		"no payload":   {`{"images":[{}]}`, "image needs data or pixels"},
		"both":         {`{"images":[{"data":"eA==","pixels":[1]}]}`, "either data or pixels"},
		"bad base64":   {`{"images":[{"data":"%%%"}]}`, "not valid base64"},
		"not an image": {`{"images":[{"data":"eA=="}]}`, "images[0]"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, e, http.MethodPost, "/v1/classify", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.Contains(t, rec.Body.String(), tc.want)
			require.Contains(t, rec.Body.String(), "invalid_request_error")
		})
	}
}

type failingClassifier struct {
	cfg config.Model
	err error
}

func (f failingClassifier) Config() config.Model { return f.cfg }
func (f failingClassifier) NumParams() int       { return 0 }
func (f failingClassifier) Classify(context.Context, vision.Images, int) ([][]model.Prediction, error) {
	return nil, f.err
}

func TestClassifyErrorStatus(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	body := encodeBody(t, ClassifyRequest{Images: []ImageInput{{
		Pixels: make([]float32, cfg.ImageSize*cfg.ImageSize*cfg.Channels), Height: cfg.ImageSize, Width: cfg.ImageSize, Channels: cfg.Channels,
	}}})

	rec := doJSON(t, newTestEcho(t, failingClassifier{cfg: cfg, err: errors.New("boom")}), http.MethodPost, "/v1/classify", body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "server_error")

	rec = doJSON(t, newTestEcho(t, failingClassifier{cfg: cfg, err: context.Canceled}), http.MethodPost, "/v1/classify", body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerWithoutModel(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, nil)
	require.Equal(t, http.StatusServiceUnavailable, doJSON(t, e, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, doJSON(t, e, http.MethodGet, "/v1/model", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, doJSON(t, e, http.MethodPost, "/v1/classify", `{}`).Code)
}
