package polymarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestBestBook_MergeKeepsPreviousSides(t *testing.T) {
	b := &bestBook{}

	b.merge(PriceChange{AssetID: "x", BestBid: fptr(0.52), BestAsk: fptr(0.54)}, 1_000)
	b.merge(PriceChange{AssetID: "x", BestBid: fptr(0.53)}, 2_000)

	require.NotNil(t, b.bid)
	require.NotNil(t, b.ask)
	assert.Equal(t, 0.53, *b.bid)
	assert.Equal(t, 0.54, *b.ask)
}

func TestBestBook_MidNilWhenOneSided(t *testing.T) {
	b := &bestBook{}
	b.merge(PriceChange{AssetID: "x", BestBid: fptr(0.52)}, 1_000)

	assert.Nil(t, b.mid(1_000, 5_000))
}

func TestBestBook_MidNilWhenStale(t *testing.T) {
	b := &bestBook{}
	b.merge(PriceChange{AssetID: "x", BestBid: fptr(0.52), BestAsk: fptr(0.54)}, 1_000)

	require.NotNil(t, b.mid(5_000, 5_000))
	assert.Nil(t, b.mid(6_001, 5_000))
}

func TestBestBook_MidIsMidpoint(t *testing.T) {
	b := &bestBook{}
	b.merge(PriceChange{AssetID: "x", BestBid: fptr(0.52), BestAsk: fptr(0.54)}, 1_000)

	mid := b.mid(1_000, 0)
	require.NotNil(t, mid)
	assert.InDelta(t, 0.53, *mid, 1e-9)
}
