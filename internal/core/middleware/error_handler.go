package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Nzyazin/walletledger/internal/core/logger"
)

type ErrorHandler struct {
	handler http.Handler
	log     logger.Logger
}

// WithErrorHandler rewrites error responses that were not written as JSON
// (http.Error, router defaults) into {"error": "..."} bodies.
func WithErrorHandler(log logger.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return &ErrorHandler{handler: h, log: log}
	}
}

func (eh *ErrorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ew := &errorWriter{ResponseWriter: w}
	eh.handler.ServeHTTP(ew, r)

	if ew.rewritten {
		eh.log.Debug("Rewrote non-JSON error response",
			logger.StringField("method", r.Method),
			logger.StringField("path", r.URL.Path),
			logger.IntField("status", ew.status),
		)
	}
}

// NotFoundHandler and MethodNotAllowedHandler replace the router's plain-text defaults.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound)
	})
}

func MethodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed)
	})
}

type errorWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	rewritten   bool
}

func (w *errorWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code

	if code >= http.StatusBadRequest && !isJSON(w.Header().Get("Content-Type")) {
		w.rewritten = true
		w.Header().Del("Content-Length")
		writeJSONError(w.ResponseWriter, code)
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *errorWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.rewritten {
		// The original body was replaced.
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}

func writeJSONError(w http.ResponseWriter, code int) {
	body, _ := json.Marshal(map[string]string{"error": http.StatusText(code)})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}
