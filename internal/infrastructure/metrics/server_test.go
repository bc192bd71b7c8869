package metrics

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"margin_maker/internal/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesScrapeAndHealth(t *testing.T) {
	s := NewServer(0, mock.NopLogger{})
	require.NoError(t, s.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, s.Stop(ctx))
	}()

	for _, path := range []string{"/metrics", "/healthz"} {
		resp, err := http.Get(fmt.Sprintf("http://%s%s", s.Addr(), path))
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestServerStopWithoutStart(t *testing.T) {
	s := NewServer(0, mock.NopLogger{})
	assert.NoError(t, s.Stop(context.Background()))
}
