package sink_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/polyflow/internal/adapters/sink"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/features"
	"github.com/alejandrodnm/polyflow/internal/health"
	"github.com/alejandrodnm/polyflow/internal/pipeline"
	"github.com/alejandrodnm/polyflow/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStorage struct {
	signals []domain.SignalRecord
	trades  []domain.SimulatedTrade
	events  []domain.ReplayEvent
	err     error
}

func (m *mockStorage) SaveSignals(_ context.Context, _ string, rows []domain.SignalRecord) error {
	if m.err != nil {
		return m.err
	}
	m.signals = append(m.signals, rows...)
	return nil
}

func (m *mockStorage) SaveTrades(_ context.Context, _ string, trades []domain.SimulatedTrade) error {
	if m.err != nil {
		return m.err
	}
	m.trades = append(m.trades, trades...)
	return nil
}

func (m *mockStorage) SaveEvents(_ context.Context, events []domain.ReplayEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockStorage) LoadEvents(_ context.Context, _ ports.EventFilter) ([]domain.ReplayEvent, error) {
	return m.events, nil
}

func (m *mockStorage) Close() error { return nil }

// --- helpers ---

func bookOutput(ts int64, withSignal bool) pipeline.Output {
	bid, ask := 0.52, 0.54
	mid := (bid + ask) / 2
	out := pipeline.Output{
		Event: domain.UnifiedEvent{
			Kind: domain.KindPmBook, AssetID: "asset-up", ConditionID: "0xcond",
			BestBid: &bid, BestAsk: &ask, Mid: &mid,
			ExchangeTs: ts, IngestTs: ts,
		},
		State: health.StateRunning,
	}
	if withSignal {
		dt := int64(500)
		out.Dislocation = &features.Signal{
			ExpectedProb: 0.5, PmMid: mid, DeltaSPD: 0.5 - mid,
			ExchangeTs: ts, IngestTs: ts,
		}
		out.DtMs = &dt
	}
	return out
}

func testCtx() pipeline.Context {
	return pipeline.Context{
		Mode: pipeline.ModeCollect, RunID: "run-1",
		ConditionID: "0xcond", AssetID: "asset-up",
	}
}

// --- tests ---

func TestCollect_BuffersOnlySignalOutputs(t *testing.T) {
	c := sink.NewCollect("run-1", nil, false)

	require.NoError(t, c.Handle(bookOutput(1_000, false), testCtx()))
	require.NoError(t, c.Handle(bookOutput(2_000, true), testCtx()))

	assert.Equal(t, int64(2), c.Handled())
	require.Len(t, c.Signals(), 1)

	rec := c.Signals()[0]
	assert.Equal(t, "0xcond", rec.ConditionID)
	assert.Equal(t, "asset-up", rec.AssetID)
	assert.Equal(t, int64(2_000), rec.ExchangeTs)
	require.NotNil(t, rec.DtMs)
	assert.Equal(t, int64(500), *rec.DtMs)
}

func TestCollect_FingerprintIsDeterministic(t *testing.T) {
	a := sink.NewCollect("a", nil, false)
	b := sink.NewCollect("b", nil, false)

	for ts := int64(1_000); ts <= 5_000; ts += 1_000 {
		require.NoError(t, a.Handle(bookOutput(ts, ts%2_000 == 0), testCtx()))
		require.NoError(t, b.Handle(bookOutput(ts, ts%2_000 == 0), testCtx()))
	}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestCollect_FingerprintDiffersOnDifferentSequence(t *testing.T) {
	a := sink.NewCollect("a", nil, false)
	b := sink.NewCollect("b", nil, false)

	require.NoError(t, a.Handle(bookOutput(1_000, true), testCtx()))
	require.NoError(t, b.Handle(bookOutput(2_000, true), testCtx()))

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestCollect_FlushToDBClearsBuffers(t *testing.T) {
	store := &mockStorage{}
	c := sink.NewCollect("run-1", store, true)

	require.NoError(t, c.Handle(bookOutput(1_000, true), testCtx()))
	c.FlushToDB(context.Background())

	assert.Len(t, store.signals, 1)
	assert.Len(t, store.events, 1)
	assert.Equal(t, int64(0), store.events[0].ArrivalOrdinal)
	assert.Empty(t, c.Signals())
}

func TestCollect_FlushErrorKeepsBuffers(t *testing.T) {
	store := &mockStorage{err: errors.New("db gone")}
	c := sink.NewCollect("run-1", store, false)

	require.NoError(t, c.Handle(bookOutput(1_000, true), testCtx()))
	c.FlushToDB(context.Background())

	// El fallo de flush no rompe el run ni pierde lo acumulado.
	assert.Len(t, c.Signals(), 1)
}

func TestCollect_EventOrdinalsAreMonotonic(t *testing.T) {
	store := &mockStorage{}
	c := sink.NewCollect("run-1", store, true)

	for ts := int64(1_000); ts <= 3_000; ts += 1_000 {
		require.NoError(t, c.Handle(bookOutput(ts, false), testCtx()))
	}
	c.FlushToDB(context.Background())

	require.Len(t, store.events, 3)
	for i, ev := range store.events {
		assert.Equal(t, int64(i), ev.ArrivalOrdinal)
	}
}
