package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ServesMetrics(t *testing.T) {
	s, err := Start("127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_Shutdown(t *testing.T) {
	s, err := Start("127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Shutdown(context.Background()))

	_, err = http.Get("http://" + s.Addr() + "/metrics")
	assert.Error(t, err)
}
