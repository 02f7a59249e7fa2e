package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCeilToInterval(t *testing.T) {
	assert.Equal(t, int64(900), ceilToInterval(1, 900))
	assert.Equal(t, int64(900), ceilToInterval(900, 900))
	assert.Equal(t, int64(1_800), ceilToInterval(901, 900))
}

func TestBuildSlugs(t *testing.T) {
	// 1000s → la ventana actual termina en 1800.
	slugs := buildSlugs("btc", 1_000_000, 3)

	assert.Equal(t, []string{
		"btc-updown-15m-1800",
		"btc-updown-15m-2700",
		"btc-updown-15m-3600",
	}, slugs)
}

func TestMapGammaMarket_Valid(t *testing.T) {
	gm := gammaMarket{
		ConditionID:  "0xcond",
		Slug:         "btc-updown-15m-1800",
		ClobTokenIDs: `["token-up","token-down"]`,
		TickSize:     json.Number("0.001"),
		MinOrderSize: json.Number("5"),
	}

	md, ok := mapGammaMarket(gm)

	require.True(t, ok)
	assert.Equal(t, "0xcond", md.ConditionID)
	assert.Equal(t, "token-up", md.AssetIDUp)
	assert.Equal(t, "token-down", md.AssetIDDown)
	assert.Equal(t, 0.001, md.TickSize)
	assert.Equal(t, 5.0, md.MinOrderSize)
	assert.Equal(t, "btc-updown-15m-1800", md.Slug)
}

func TestMapGammaMarket_DefaultsWhenSizesMissing(t *testing.T) {
	gm := gammaMarket{
		ConditionID:  "0xcond",
		ClobTokenIDs: `["up","down"]`,
	}

	md, ok := mapGammaMarket(gm)

	require.True(t, ok)
	assert.Equal(t, 0.01, md.TickSize)
	assert.Equal(t, 1.0, md.MinOrderSize)
}

func TestMapGammaMarket_Rejections(t *testing.T) {
	cases := []struct {
		name string
		gm   gammaMarket
	}{
		{"missing condition id", gammaMarket{ClobTokenIDs: `["a","b"]`}},
		{"closed market", gammaMarket{ConditionID: "0xc", Closed: true, ClobTokenIDs: `["a","b"]`}},
		{"single token", gammaMarket{ConditionID: "0xc", ClobTokenIDs: `["a"]`}},
		{"malformed token list", gammaMarket{ConditionID: "0xc", ClobTokenIDs: `not-json`}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := mapGammaMarket(tc.gm)
			assert.False(t, ok)
		})
	}
}

func TestParsePriceChanges_Valid(t *testing.T) {
	raw := []byte(`{
		"topic": "clob_market",
		"type": "price_changes",
		"payload": {
			"m": "0xcond",
			"t": "1700000001000",
			"pc": [
				{"a": "token-up", "bb": "0.52", "ba": "0.54"},
				{"a": "token-down", "bb": "0.46"}
			]
		}
	}`)

	ev, ok := ParsePriceChanges(raw, 1_700_000_002_000)

	require.True(t, ok)
	assert.Equal(t, "0xcond", ev.ConditionID)
	assert.Equal(t, int64(1_700_000_001_000), ev.ExchangeTs)
	require.Len(t, ev.Changes, 2)

	up := ev.Changes[0]
	assert.Equal(t, "token-up", up.AssetID)
	require.NotNil(t, up.BestBid)
	require.NotNil(t, up.BestAsk)
	assert.Equal(t, 0.52, *up.BestBid)
	assert.Equal(t, 0.54, *up.BestAsk)

	// Lado ausente queda nil, no cero.
	down := ev.Changes[1]
	require.NotNil(t, down.BestBid)
	assert.Nil(t, down.BestAsk)
}

func TestParsePriceChanges_BadTimestampUsesIngestTs(t *testing.T) {
	raw := []byte(`{"topic":"clob_market","type":"price_changes","payload":{"m":"0xcond","t":"soon","pc":[{"a":"x","bb":"0.5"}]}}`)

	ev, ok := ParsePriceChanges(raw, 1_700_000_002_000)

	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_002_000), ev.ExchangeTs)
}

func TestParsePriceChanges_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"wrong topic", `{"topic":"activity","type":"price_changes","payload":{"m":"0xc"}}`},
		{"wrong type", `{"topic":"clob_market","type":"book","payload":{"m":"0xc"}}`},
		{"missing market", `{"topic":"clob_market","type":"price_changes","payload":{"pc":[]}}`},
		{"malformed json", `{"topic":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := ParsePriceChanges([]byte(tc.raw), 0)
			assert.False(t, ok)
		})
	}
}

func TestParsePriceChanges_SkipsEntriesWithoutAssetID(t *testing.T) {
	raw := []byte(`{"topic":"clob_market","type":"price_changes","payload":{"m":"0xc","t":"1000","pc":[{"bb":"0.5"},{"a":"token","ba":"0.6"}]}}`)

	ev, ok := ParsePriceChanges(raw, 0)

	require.True(t, ok)
	require.Len(t, ev.Changes, 1)
	assert.Equal(t, "token", ev.Changes[0].AssetID)
}
