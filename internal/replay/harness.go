package replay

import (
	"errors"
	"fmt"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/pipeline"
)

// ErrNonMonotonic indica ExchangeTs decreciente después del sort.
// Es fatal: implica que el sort o la asignación de ordinales está rota,
// no una condición recuperable.
var ErrNonMonotonic = errors.New("replay: non-monotonic exchangeTs after sort")

// Run asigna ordinales a los eventos que no los traen, los ordena canónicamente
// y los alimenta uno a uno al MISMO HandleEvent que usa el modo live.
// Invariante: el replay no tiene branching ni tratamiento especial.
func Run(events []domain.ReplayEvent, runner *pipeline.Runner, sink pipeline.IntentSink, ctx pipeline.Context) error {
	withOrdinal := make([]domain.ReplayEvent, len(events))
	copy(withOrdinal, events)
	for i := range withOrdinal {
		if withOrdinal[i].ArrivalOrdinal < 0 {
			withOrdinal[i].ArrivalOrdinal = int64(i)
		}
	}

	ordered := Sort(withOrdinal)
	if err := verifyMonotonic(ordered); err != nil {
		return err
	}

	for _, ev := range ordered {
		if _, err := runner.HandleEvent(ev.UnifiedEvent, sink, ctx); err != nil {
			return fmt.Errorf("replay.Run: %w", err)
		}
	}
	return nil
}

// verifyMonotonic es la guardia de corrección post-sort.
func verifyMonotonic(ordered []domain.ReplayEvent) error {
	var last int64
	for i, ev := range ordered {
		if i > 0 && ev.ExchangeTs < last {
			return fmt.Errorf("replay.Run: exchangeTs %d after %d: %w",
				ev.ExchangeTs, last, ErrNonMonotonic)
		}
		last = ev.ExchangeTs
	}
	return nil
}
