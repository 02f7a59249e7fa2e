package replay_test

import (
	"math/rand"
	"testing"

	"github.com/alejandrodnm/polyflow/internal/adapters/sink"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/features"
	"github.com/alejandrodnm/polyflow/internal/health"
	"github.com/alejandrodnm/polyflow/internal/pipeline"
	"github.com/alejandrodnm/polyflow/internal/position"
	"github.com/alejandrodnm/polyflow/internal/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner() *pipeline.Runner {
	return pipeline.NewRunner(pipeline.Config{
		Features:      features.DefaultConfig(),
		Health:        health.DefaultConfig(),
		AllowZeroBeta: true,
		SpotProductID: "BTC-USD",
		Intent: position.Params{
			DeltaThreshold:       0.01,
			InventoryCap:         100,
			OrderSize:            5,
			UnwindStartFrac:      0.5,
			UnwindAggressiveFrac: 0.8,
			UnwindMinEdgeTicks:   1,
			UnwindCooldownMs:     5_000,
			TickSize:             0.01,
		},
	})
}

// canonicalStream genera un stream mixto ya en orden canónico, con los
// ordinales de llegada asignados.
func canonicalStream() []domain.ReplayEvent {
	var events []domain.ReplayEvent
	spot := 100.0
	for i := 0; i < 50; i++ {
		ts := int64(1_000 * (i + 1))
		spot += float64(i%7) - 3

		mid := spot
		events = append(events, domain.ReplayEvent{UnifiedEvent: domain.UnifiedEvent{
			Kind: domain.KindSpot, ProductID: "BTC-USD", Mid: &mid,
			ExchangeTs: ts, IngestTs: ts,
		}})

		bid := 0.50 + float64(i%5)*0.01
		ask := bid + 0.02
		bookMid := (bid + ask) / 2
		events = append(events, domain.ReplayEvent{UnifiedEvent: domain.UnifiedEvent{
			Kind: domain.KindPmBook, AssetID: "asset-up", ConditionID: "0xcond",
			BestBid: &bid, BestAsk: &ask, Mid: &bookMid,
			ExchangeTs: ts + 500, IngestTs: ts + 500,
		}})
	}
	for i := range events {
		events[i].ArrivalOrdinal = int64(i)
	}
	return events
}

func TestRun_MatchesSequentialProcessing(t *testing.T) {
	canon := canonicalStream()

	// "Live": mismo stream, evento a evento por HandleEvent.
	liveRunner := newTestRunner()
	liveSink := sink.NewCollect("live", nil, false)
	ctx := pipeline.Context{Mode: pipeline.ModeLive, RunID: "live"}
	for _, ev := range canon {
		_, err := liveRunner.HandleEvent(ev.UnifiedEvent, liveSink, ctx)
		require.NoError(t, err)
	}

	// Replay: mismos eventos barajados; el sorter restaura el orden canónico.
	shuffled := make([]domain.ReplayEvent, len(canon))
	copy(shuffled, canon)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	replayRunner := newTestRunner()
	replaySink := sink.NewCollect("replay", nil, false)
	err := replay.Run(shuffled, replayRunner, replaySink, pipeline.Context{Mode: pipeline.ModeBacktest, RunID: "replay"})
	require.NoError(t, err)

	assert.Equal(t, liveSink.Handled(), replaySink.Handled())
	assert.Equal(t, liveSink.Fingerprint(), replaySink.Fingerprint())
	assert.Equal(t, liveRunner.State(), replayRunner.State())
	assert.Equal(t, liveRunner.Collisions(), replayRunner.Collisions())
}

func TestRun_AssignsMissingOrdinalsByPosition(t *testing.T) {
	bid, ask := 0.52, 0.54
	mid := 100.0
	events := []domain.ReplayEvent{
		domain.NewReplayEvent(domain.UnifiedEvent{
			Kind: domain.KindPmBook, AssetID: "a", ConditionID: "c",
			BestBid: &bid, BestAsk: &ask, ExchangeTs: 1_000, IngestTs: 1_000,
		}),
		domain.NewReplayEvent(domain.UnifiedEvent{
			Kind: domain.KindSpot, ProductID: "BTC-USD", Mid: &mid,
			ExchangeTs: 1_000, IngestTs: 1_000,
		}),
	}

	runner := newTestRunner()
	collector := sink.NewCollect("r", nil, false)
	err := replay.Run(events, runner, collector, pipeline.Context{})

	require.NoError(t, err)
	assert.Equal(t, int64(2), collector.Handled())
}

func TestRun_DoesNotMutateInputOrdinals(t *testing.T) {
	events := canonicalStream()
	for i := range events {
		events[i].ArrivalOrdinal = -1
	}

	err := replay.Run(events, newTestRunner(), sink.NewCollect("r", nil, false), pipeline.Context{})

	require.NoError(t, err)
	for _, ev := range events {
		assert.Equal(t, int64(-1), ev.ArrivalOrdinal)
	}
}
