package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/markdave123-py/docchat/internal/core"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("conversation x: %w", core.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: \"a.txt\"", core.ErrUnsupportedFile), http.StatusBadRequest},
		{fmt.Errorf("%w: bad xref", core.ErrExtraction), http.StatusUnprocessableEntity},
		{fmt.Errorf("retrieve: %w", core.ErrEmbeddingService), http.StatusBadGateway},
		{core.ErrCompletionService, http.StatusBadGateway},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, msg := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)

	writeError(rec, req, errors.New("pq: password authentication failed for user admin"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestHandlers_RequireIdentity(t *testing.T) {
	h := NewDocumentHandler(nil)
	rec := httptest.NewRecorder()
	h.GetDocuments(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
