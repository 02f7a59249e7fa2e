package storage_test

import (
	"context"
	"testing"

	"github.com/alejandrodnm/polyflow/internal/adapters/storage"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func makeEvent(kind domain.EventKind, ts, ordinal int64) domain.ReplayEvent {
	ev := domain.ReplayEvent{ArrivalOrdinal: ordinal}
	ev.Kind = kind
	ev.ExchangeTs = ts
	ev.IngestTs = ts + 50
	if kind == domain.KindSpot {
		ev.ProductID = "BTC-USD"
		ev.BaseAsset = "BTC"
		ev.QuoteAsset = "USD"
		ev.Mid = ptr(100_000)
	} else {
		ev.AssetID = "asset-up"
		ev.ConditionID = "0xcond"
		ev.BestBid = ptr(0.52)
		ev.BestAsk = ptr(0.54)
		ev.Mid = ptr(0.53)
	}
	return ev
}

func TestSQLiteStorage_EventsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	saved := []domain.ReplayEvent{
		makeEvent(domain.KindSpot, 1_000, 0),
		makeEvent(domain.KindPmBook, 1_500, 1),
	}
	require.NoError(t, s.SaveEvents(ctx, saved))

	loaded, err := s.LoadEvents(ctx, ports.EventFilter{})
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, saved[0], loaded[0])
	assert.Equal(t, saved[1], loaded[1])
}

func TestSQLiteStorage_SaveEventsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	events := []domain.ReplayEvent{makeEvent(domain.KindSpot, 1_000, 0)}
	require.NoError(t, s.SaveEvents(ctx, events))
	require.NoError(t, s.SaveEvents(ctx, events))

	loaded, err := s.LoadEvents(ctx, ports.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestSQLiteStorage_LoadEventsTimeRange(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEvents(ctx, []domain.ReplayEvent{
		makeEvent(domain.KindSpot, 1_000, 0),
		makeEvent(domain.KindSpot, 2_000, 1),
		makeEvent(domain.KindSpot, 3_000, 2),
	}))

	loaded, err := s.LoadEvents(ctx, ports.EventFilter{StartMs: 1_500, EndMs: 2_500})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(2_000), loaded[0].ExchangeTs)
}

func TestSQLiteStorage_LoadEventsInstrumentFilterKeepsBothFeeds(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEvents(ctx, []domain.ReplayEvent{
		makeEvent(domain.KindSpot, 1_000, 0),
		makeEvent(domain.KindPmBook, 1_500, 1),
	}))

	// Pedir un asset y un product a la vez debe devolver ambos feeds.
	loaded, err := s.LoadEvents(ctx, ports.EventFilter{
		AssetIDs:   []string{"asset-up"},
		ProductIDs: []string{"BTC-USD"},
	})
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	// Solo el asset: los spot quedan fuera.
	loaded, err = s.LoadEvents(ctx, ports.EventFilter{AssetIDs: []string{"asset-up"}})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, domain.KindPmBook, loaded[0].Kind)
}

func TestSQLiteStorage_SaveSignalsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	dt := int64(500)
	rows := []domain.SignalRecord{{
		ConditionID: "0xcond", AssetID: "asset-up",
		ExchangeTs: 1_000, IngestTs: 1_050, DtMs: &dt,
		PmMid: 0.53, ExpectedProb: 0.5, DeltaSPD: -0.03,
		State: "RUNNING", OrderingCollision: true,
	}}

	require.NoError(t, s.SaveSignals(ctx, "run-1", rows))
	require.NoError(t, s.SaveSignals(ctx, "run-1", rows))
}

func TestSQLiteStorage_SaveTrades(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	trades := []domain.SimulatedTrade{{
		IntentID: "intent-1", ConditionID: "0xcond", AssetID: "asset-up",
		Side: domain.SideSell, Price: 0.52, Size: 5,
		Timestamp: 1_000, LatencyMs: 500,
	}}

	require.NoError(t, s.SaveTrades(ctx, "run-1", trades))
	require.NoError(t, s.SaveTrades(ctx, "run-1", trades))
}

func TestSQLiteStorage_EmptyBatchesAreNoops(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	assert.NoError(t, s.SaveSignals(ctx, "run-1", nil))
	assert.NoError(t, s.SaveTrades(ctx, "run-1", nil))
	assert.NoError(t, s.SaveEvents(ctx, nil))
}
