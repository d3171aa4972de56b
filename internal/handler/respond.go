package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// apiError is the uniform error body: {"code": ..., "message": ...} plus an
// optional offending product id.
type apiError struct {
	Code      int
	Message   string
	ProductID string
}

// writeJSON encodes the response produced by fill and writes it with the
// given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, fill func(e *jx.Encoder)) {
	var e jx.Encoder
	fill(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(r.Context()).Debug("Failed to write response", zap.Error(err))
	}
}

// writeError writes the uniform error body.
func writeError(w http.ResponseWriter, r *http.Request, apiErr apiError) {
	writeJSON(w, r, apiErr.Code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(apiErr.Code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(apiErr.Message) })
			if apiErr.ProductID != "" {
				e.Field("productId", func(e *jx.Encoder) { e.Str(apiErr.ProductID) })
			}
		})
	})
}

// writeInternalError logs the error and responds with a bare 500. The caller
// never sees partial state or internal details.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, r, apiError{Code: http.StatusInternalServerError, Message: "internal server error"})
}

// decodeBody reads the request body (bounded) and hands it to parse as a jx
// decoder. An empty body is passed through as an empty object.
func decodeBody(r *http.Request, parse func(d *jx.Decoder) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	return parse(jx.DecodeBytes(body))
}

// optTimeField encodes a nullable timestamp field.
func optTimeField(e *jx.Encoder, name string, t *time.Time) {
	e.Field(name, func(e *jx.Encoder) {
		if t == nil {
			e.Null()
			return
		}
		e.Str(t.Format(time.RFC3339))
	})
}
