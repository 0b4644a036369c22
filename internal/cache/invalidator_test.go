package cache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPInvalidator(t *testing.T) {
	var gotBody, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	inv := NewHTTPInvalidator(server.URL, "edge-secret", time.Second)
	err := inv.Invalidate(context.Background(), "class-123")
	require.NoError(t, err)
	assert.Equal(t, "class-123", gotBody)
	assert.Equal(t, "Bearer edge-secret", gotAuth)
}

func TestHTTPInvalidatorErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	inv := NewHTTPInvalidator(server.URL, "", time.Second)
	err := inv.Invalidate(context.Background(), "class-123")

	var invErr *InvalidationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, http.StatusBadGateway, invErr.Status)
}
