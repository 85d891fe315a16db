//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/carify/identity-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", testutil.ReadBody(t, resp))
}

func TestReadyz(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestVersion(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/version")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Version string `json:"version"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.NotEmpty(t, result.Version)
}
