package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/sparsevit/internal/vision"
)

func writeJSON(c *echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMEApplicationJSON, b)
}

func writeBadRequest(c *echo.Context, msg, param string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param)
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return writeJSON(c, status, ErrorResponse{Error: ResponseError{
		Message: msg,
		Type:    errType,
		Param:   param,
	}})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}

// decodeImage turns one request image into normalized HWC pixels of the
// given side and channel count.
func decodeImage(in ImageInput, size, channels int) ([]float32, error) {
	switch {
	case in.Data != "" && len(in.Pixels) > 0:
		return nil, newInvalidRequest("set either data or pixels, not both")
	case in.Data != "":
		raw, err := base64.StdEncoding.DecodeString(in.Data)
		if err != nil {
			return nil, newInvalidRequest("data is not valid base64")
		}
		if channels != 3 {
			return nil, newInvalidRequest(fmt.Sprintf("encoded images need a 3-channel model, this one has %d", channels))
		}
		pixels, err := vision.Preprocess(bytes.NewReader(raw), size)
		if err != nil {
			return nil, newInvalidRequest(err.Error())
		}
		return pixels, nil
	case len(in.Pixels) > 0:
		if in.Height != size || in.Width != size || in.Channels != channels {
			return nil, newInvalidRequest(fmt.Sprintf("pixels must be shaped (%d, %d, %d), got (%d, %d, %d)",
				size, size, channels, in.Height, in.Width, in.Channels))
		}
		if len(in.Pixels) != size*size*channels {
			return nil, newInvalidRequest(fmt.Sprintf("pixels has %d values, want %d", len(in.Pixels), size*size*channels))
		}
		return in.Pixels, nil
	default:
		return nil, newInvalidRequest("image needs data or pixels")
	}
}

func newRequestID() string {
	return "cls_" + uuid.NewString()
}
