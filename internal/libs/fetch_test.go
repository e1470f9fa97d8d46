package libs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/resilience"
)

func TestUpstreamFault(t *testing.T) {
	assert.False(t, upstreamFault(nil))
	assert.False(t, upstreamFault(&StatusError{Code: http.StatusNotFound}))
	assert.False(t, upstreamFault(&StatusError{Code: http.StatusForbidden}))
	assert.True(t, upstreamFault(&StatusError{Code: http.StatusTooManyRequests}))
	assert.True(t, upstreamFault(&StatusError{Code: http.StatusBadGateway}))
	assert.True(t, upstreamFault(errors.New("connection refused")))
}

func TestFetcherMissingAssetsKeepBreakerClosed(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer cdn.Close()

	f := NewFetcher(nil)
	for i := 0; i < 8; i++ {
		_, err := f.Fetch(context.Background(), cdn.URL+"/three/examples/jsm/missing.js")
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusNotFound, se.Code)
	}
	assert.Equal(t, resilience.StateClosed, f.BreakerState())
}
