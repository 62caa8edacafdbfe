package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/sagernet/sing-bridge/counter"

	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	t.Parallel()
	counters := counter.New()
	counters.Streams.Add(3)
	counters.Routes.Add(2)
	counters.Overflows.Add(1)

	handler, err := Handler(counters)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, recorder.Code)
	body := recorder.Body.String()
	require.Contains(t, body, "bridge_streams_established_total 3")
	require.Contains(t, body, "bridge_routes_installed_total 2")
	require.Contains(t, body, "bridge_overflow_events_total 1")
}
