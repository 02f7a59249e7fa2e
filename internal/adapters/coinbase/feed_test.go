package coinbase_test

import (
	"testing"

	"github.com/alejandrodnm/polyflow/internal/adapters/coinbase"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ingestTs = int64(1_700_000_000_000)

func TestParseTicker_MidFromBestBook(t *testing.T) {
	raw := []byte(`{
		"type": "ticker",
		"product_id": "BTC-USD",
		"price": "100100.00",
		"best_bid": "100000.00",
		"best_ask": "100010.00",
		"time": "2025-01-15T10:00:00.123456Z"
	}`)

	ev, ok := coinbase.ParseTicker(raw, ingestTs)

	require.True(t, ok)
	assert.Equal(t, domain.KindSpot, ev.Kind)
	assert.Equal(t, "BTC-USD", ev.ProductID)
	assert.Equal(t, "BTC", ev.BaseAsset)
	assert.Equal(t, "USD", ev.QuoteAsset)
	require.NotNil(t, ev.Mid)
	assert.InDelta(t, 100_005.0, *ev.Mid, 1e-9)
	assert.Equal(t, ingestTs, ev.IngestTs)
}

func TestParseTicker_FallsBackToLastPrice(t *testing.T) {
	raw := []byte(`{"type":"ticker","product_id":"BTC-USD","price":"100100.00","best_bid":"","best_ask":""}`)

	ev, ok := coinbase.ParseTicker(raw, ingestTs)

	require.True(t, ok)
	require.NotNil(t, ev.Mid)
	assert.InDelta(t, 100_100.0, *ev.Mid, 1e-9)
}

func TestParseTicker_ExchangeTsFromMessageTime(t *testing.T) {
	raw := []byte(`{"type":"ticker","product_id":"BTC-USD","price":"100.0","time":"2025-01-15T10:00:00Z"}`)

	ev, ok := coinbase.ParseTicker(raw, ingestTs)

	require.True(t, ok)
	assert.Equal(t, int64(1_736_935_200_000), ev.ExchangeTs)
}

func TestParseTicker_MissingTimeUsesIngestTs(t *testing.T) {
	raw := []byte(`{"type":"ticker","product_id":"BTC-USD","price":"100.0"}`)

	ev, ok := coinbase.ParseTicker(raw, ingestTs)

	require.True(t, ok)
	assert.Equal(t, ingestTs, ev.ExchangeTs)
}

func TestParseTicker_RejectsNonTickerMessages(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"subscriptions ack", `{"type":"subscriptions","channels":[]}`},
		{"heartbeat", `{"type":"heartbeat","product_id":"BTC-USD"}`},
		{"malformed json", `{"type":"ticker",`},
		{"no prices at all", `{"type":"ticker","product_id":"BTC-USD"}`},
		{"zero price", `{"type":"ticker","product_id":"BTC-USD","price":"0"}`},
		{"negative price", `{"type":"ticker","product_id":"BTC-USD","price":"-5"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := coinbase.ParseTicker([]byte(tc.raw), ingestTs)
			assert.False(t, ok)
		})
	}
}

func TestParseTicker_OneSidedBookFallsBackToLast(t *testing.T) {
	raw := []byte(`{"type":"ticker","product_id":"ETH-USD","price":"3000.0","best_bid":"2999.0"}`)

	ev, ok := coinbase.ParseTicker(raw, ingestTs)

	require.True(t, ok)
	require.NotNil(t, ev.Mid)
	assert.InDelta(t, 3_000.0, *ev.Mid, 1e-9)
}
