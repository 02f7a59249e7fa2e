package notify_test

import (
	"bytes"
	"testing"

	"github.com/alejandrodnm/polyflow/internal/adapters/notify"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestConsole_PrintRunReport(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintRunReport(notify.RunReport{
		RunID:       "run-42",
		Mode:        "backtest",
		Events:      100,
		Signals:     37,
		Fingerprint: "abcdef123456",
		Trades: []domain.SimulatedTrade{{
			IntentID: "i-1", AssetID: "token-up", Side: domain.SideSell,
			Price: 0.52, Size: 5, Timestamp: 1_700_000_000_000, LatencyMs: 500,
		}},
		Cash: 2.6, MTM: -2.65, PnL: -0.05,
		Inventory: map[string]float64{"0xcond|token-up": -5},
	})

	out := buf.String()
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "backtest")
	assert.Contains(t, out, "100 events, 37 signals, 1 fills")
	assert.Contains(t, out, "pnl: -0.0500")
	assert.Contains(t, out, "fingerprint: abcdef123456")
	assert.Contains(t, out, "token-up")
	assert.Contains(t, out, "filled")
}

func TestConsole_SkipsEmptySections(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintRunReport(notify.RunReport{RunID: "run-1", Mode: "collect", Events: 10})

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.NotContains(t, out, "fingerprint:")
	assert.NotContains(t, out, "Inventory")
}

func TestConsole_MarksFailedTrades(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintRunReport(notify.RunReport{
		RunID: "run-1", Mode: "backtest",
		Trades: []domain.SimulatedTrade{{
			IntentID: "i-1", AssetID: "token-up", Side: domain.SideBuy,
			Price: 0.54, Size: 5, Timestamp: 1_700_000_000_000,
			LatencyMs: 500, Failed: true,
		}},
	})

	assert.Contains(t, buf.String(), "FAILED")
}
