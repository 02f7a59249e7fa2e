// Package notify imprime los resúmenes de un run por consola.
package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// maxTradesShown limita la tabla de fills; el detalle completo va a la DB.
const maxTradesShown = 20

// RunReport es el resumen de un run de replay/backtest.
type RunReport struct {
	RunID       string
	Mode        string
	Events      int64
	Signals     int
	Fingerprint string
	Trades      []domain.SimulatedTrade
	Cash        float64
	MTM         float64
	PnL         float64
	Inventory   map[string]float64 // "conditionId|assetId" → inventario final
}

// Console escribe reportes a un writer (stdout por defecto).
type Console struct {
	out io.Writer
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintRunReport imprime el resumen del run: totales, posiciones y fills.
func (c *Console) PrintRunReport(r RunReport) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] run %s (%s) - %d events, %d signals, %d fills\n",
		now, r.RunID, r.Mode, r.Events, r.Signals, len(r.Trades))
	fmt.Fprintf(c.out, "cash: %.4f  mtm: %.4f  pnl: %.4f\n", r.Cash, r.MTM, r.PnL)
	if r.Fingerprint != "" {
		fmt.Fprintf(c.out, "fingerprint: %s\n", r.Fingerprint)
	}

	if len(r.Inventory) > 0 {
		c.printPositions(r.Inventory)
	}
	if len(r.Trades) > 0 {
		c.printTrades(r.Trades)
	}
}

// printPositions imprime el inventario final por instrumento.
func (c *Console) printPositions(inventory map[string]float64) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Instrument", "Inventory")

	for k, inv := range inventory {
		if inv == 0 {
			continue
		}
		table.Append(shorten(k, 40), fmt.Sprintf("%.2f", inv))
	}
	table.Render()
}

// printTrades imprime los últimos fills simulados.
func (c *Console) printTrades(trades []domain.SimulatedTrade) {
	if len(trades) > maxTradesShown {
		fmt.Fprintf(c.out, "showing last %d of %d fills\n", maxTradesShown, len(trades))
		trades = trades[len(trades)-maxTradesShown:]
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Asset", "Side", "Price", "Size", "Lat ms", "Status")

	for _, t := range trades {
		status := "filled"
		if t.Failed {
			status = "FAILED"
		}
		table.Append(
			time.UnixMilli(t.Timestamp).UTC().Format("15:04:05.000"),
			shorten(t.AssetID, 12),
			string(t.Side),
			fmt.Sprintf("%.4f", t.Price),
			fmt.Sprintf("%.2f", t.Size),
			fmt.Sprintf("%d", t.LatencyMs),
			status,
		)
	}
	table.Render()
}

// shorten recorta ids largos dejando el prefijo.
func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
