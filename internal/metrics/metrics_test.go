package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(PendingReconciled.WithLabelValues("test"))
	PendingReconciled.WithLabelValues("test").Add(3)

	assert.Equal(t, before+3, testutil.ToFloat64(PendingReconciled.WithLabelValues("test")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	CacheLookups.WithLabelValues("hit").Inc()

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "wikilinks_cache_lookups_total"))
}
