package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/pipeline"
	"github.com/alejandrodnm/polyflow/internal/ports"
)

// Collect acumula señales (y opcionalmente eventos crudos) en memoria y los
// vuelca por lotes a la persistencia con FlushToDB. Sirve tanto para el modo
// collect en vivo como para acumular resultados de backtest.
//
// Además mantiene un fingerprint incremental de la secuencia de outputs:
// dos runs con el mismo set de eventos y el mismo orden inducido deben
// producir el mismo digest.
type Collect struct {
	runID        string
	storage      ports.SignalStorage
	recordEvents bool
	signals      []domain.SignalRecord
	events       []domain.ReplayEvent
	nextOrdinal  int64
	digest       hash.Hash
	handledTotal int64
}

// NewCollect crea un sink Collect. storage puede ser nil (solo acumulación en
// memoria, útil en tests); recordEvents activa la captura de eventos crudos
// para alimentar replays posteriores.
func NewCollect(runID string, storage ports.SignalStorage, recordEvents bool) *Collect {
	return &Collect{
		runID:        runID,
		storage:      storage,
		recordEvents: recordEvents,
		digest:       sha256.New(),
	}
}

// Handle acumula la señal si el output trae dislocación y alimenta el
// fingerprint con cada output, tenga señal o no.
func (c *Collect) Handle(out pipeline.Output, ctx pipeline.Context) error {
	c.handledTotal++
	c.digestOutput(out)

	if c.recordEvents {
		rev := domain.ReplayEvent{UnifiedEvent: out.Event, ArrivalOrdinal: c.nextOrdinal}
		c.nextOrdinal++
		c.events = append(c.events, rev)
	}

	if out.Dislocation == nil {
		return nil
	}
	c.signals = append(c.signals, domain.SignalRecord{
		ConditionID:       ctx.ConditionID,
		AssetID:           ctx.AssetID,
		ExchangeTs:        out.Dislocation.ExchangeTs,
		IngestTs:          out.Dislocation.IngestTs,
		DtMs:              out.DtMs,
		PmMid:             out.Dislocation.PmMid,
		ExpectedProb:      out.Dislocation.ExpectedProb,
		DeltaSPD:          out.Dislocation.DeltaSPD,
		State:             string(out.State),
		OrderingCollision: out.OrderingCollision,
	})
	return nil
}

// digestOutput incorpora la parte decisional del output al fingerprint.
func (c *Collect) digestOutput(out pipeline.Output) {
	fmt.Fprintf(c.digest, "%d|%s|%s|%t|", out.Event.ExchangeTs, out.Event.Kind, out.State, out.OrderingCollision)
	if out.Dislocation != nil {
		fmt.Fprintf(c.digest, "%.12f|%.12f|", out.Dislocation.ExpectedProb, out.Dislocation.DeltaSPD)
	}
	if out.Intent != nil {
		fmt.Fprintf(c.digest, "%s|%s|%.6f|%.6f|%s|", out.Intent.IntentID, out.Intent.Side,
			out.Intent.Price, out.Intent.Size, out.Intent.Reason)
	}
	c.digest.Write([]byte{'\n'})
}

// Fingerprint devuelve el digest hex de la secuencia de outputs procesada.
func (c *Collect) Fingerprint() string {
	return hex.EncodeToString(c.digest.Sum(nil))
}

// Signals devuelve las señales acumuladas (sin limpiar el buffer).
func (c *Collect) Signals() []domain.SignalRecord {
	return c.signals
}

// Handled devuelve cuántos outputs pasaron por el sink.
func (c *Collect) Handled() int64 {
	return c.handledTotal
}

// FlushToDB entrega los lotes acumulados a la persistencia y limpia los
// buffers. Un fallo se loguea y no se propaga: el flush es fire-and-forget
// respecto al camino de decisión.
func (c *Collect) FlushToDB(ctx context.Context) {
	if c.storage == nil {
		return
	}
	if len(c.signals) > 0 {
		if err := c.storage.SaveSignals(ctx, c.runID, c.signals); err != nil {
			slog.Error("failed to flush signals", "err", err, "run_id", c.runID, "count", len(c.signals))
		} else {
			c.signals = nil
		}
	}
	if len(c.events) > 0 {
		if err := c.storage.SaveEvents(ctx, c.events); err != nil {
			slog.Error("failed to flush events", "err", err, "run_id", c.runID, "count", len(c.events))
		} else {
			c.events = nil
		}
	}
}
