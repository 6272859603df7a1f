package infra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"market_sync/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordEvent("PRICE_UPDATE")
	m.RecordEvent("PRICE_UPDATE")
	m.RecordEvent("FULL_SYNC_STATE")
	m.RecordDiscard("PRICE_UPDATE", ReasonStale)
	m.RecordDecodeError()
	m.RecordTrade(domain.ResultSuccess)
	m.RecordTrade(string(domain.FailureTimeout))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsProcessed.WithLabelValues("PRICE_UPDATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsProcessed.WithLabelValues("FULL_SYNC_STATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDiscarded.WithLabelValues("PRICE_UPDATE", ReasonStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradeOutcomes.WithLabelValues("TIMEOUT")))
}

func TestMetrics_Gauges(t *testing.T) {
	m := NewMetrics()

	m.SetConnectionState(domain.Reconnecting)
	m.SetEpoch(7)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.connectionState))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.epoch))
}

func TestMetrics_PrivateRegistry(t *testing.T) {
	// two instances must not collide on registration
	a := NewMetrics()
	b := NewMetrics()
	a.RecordReconnect()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.reconnectAttempts))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.reconnectAttempts))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordEvent("GAME_STATE_UPDATE")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `market_sync_events_processed_total{event="GAME_STATE_UPDATE"} 1`)
}
