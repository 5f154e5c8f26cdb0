package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/mdref/internal/apperr"
	"github.com/starford/mdref/internal/linkservice"
)

// maxBodyBytes caps request bodies for the move endpoints.
const maxBodyBytes = 1 << 20

// Error codes carried in errResponse.Code.
const (
	codeBadRequest    = "bad_request"
	codeUnauthorized  = "unauthorized"
	codeNotFound      = "not_found"
	codeInvalidPath   = "invalid_path"
	codeAlreadyExists = "already_exists"
	codeNoExport      = "export_unavailable"
	codeInternal      = "internal"
)

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func writeFail(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errResponse{Error: msg, Code: code})
}

// writeError maps domain errors onto status codes. Unclassified errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeFail(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, apperr.ErrPath):
		writeFail(w, http.StatusBadRequest, codeInvalidPath, err.Error())
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeFail(w, http.StatusConflict, codeAlreadyExists, "destination already exists")
	case errors.Is(err, linkservice.ErrNoExport):
		writeFail(w, http.StatusServiceUnavailable, codeNoExport, err.Error())
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeFail(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// queryPath returns the required "path" query parameter, answering 400
// itself when it is missing.
func queryPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeFail(w, http.StatusBadRequest, codeBadRequest, "query parameter 'path' is required")
		return "", false
	}
	return path, true
}

// decodeBody reads a size-limited JSON body into dst, answering 400 itself
// on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return false
	}
	return true
}
