package pipeline

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// Dispatcher serializa los eventos de múltiples feeds concurrentes hacia el
// único punto de entrada del consumer. Los feeds publican con Submit; un solo
// goroutine (Run) ejecuta HandleEvent, preservando la disciplina single-writer.
// El orden en live es "best effort de llegada"; el canónico lo fija el replay.
type Dispatcher struct {
	runner *Runner
	sink   IntentSink
	ctx    Context
	events chan domain.UnifiedEvent
}

// NewDispatcher crea un Dispatcher con un buffer acotado.
func NewDispatcher(runner *Runner, sink IntentSink, pctx Context, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		runner: runner,
		sink:   sink,
		ctx:    pctx,
		events: make(chan domain.UnifiedEvent, buffer),
	}
}

// Submit encola un evento; si el buffer está lleno el evento se descarta con
// log (backpressure sin bloquear el read loop del websocket).
func (d *Dispatcher) Submit(ev domain.UnifiedEvent) {
	select {
	case d.events <- ev:
	default:
		slog.Warn("dispatcher buffer full, dropping event",
			"kind", ev.Kind, "exchange_ts", ev.ExchangeTs)
	}
}

// Run consume eventos hasta que el contexto se cancele. Un evento ya aceptado
// por HandleEvent corre hasta completarse; no hay aborto a mitad de decisión.
// Devuelve error solo ante una violación fatal (invariante de posición o sink).
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.events:
			if _, err := d.runner.HandleEvent(ev, d.sink, d.ctx); err != nil {
				return err
			}
		}
	}
}
