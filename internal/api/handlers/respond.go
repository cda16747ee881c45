package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	middleware "github.com/markdave123-py/docchat/internal/api/middlewares"
	"github.com/markdave123-py/docchat/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("encode response")
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps core sentinels to HTTP statuses and client-safe messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrUnsupportedFile):
		return http.StatusBadRequest, core.ErrUnsupportedFile.Error()
	case errors.Is(err, core.ErrExtraction):
		return http.StatusUnprocessableEntity, "could not read document"
	case errors.Is(err, core.ErrEmbeddingService), errors.Is(err, core.ErrCompletionService):
		return http.StatusBadGateway, "upstream model service failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError logs the full error and sends only the mapped message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	entry := logrus.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// ownerID reads the request identity, answering 401 when it is missing.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "no identity"})
	}
	return id, ok
}
