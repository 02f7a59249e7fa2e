package pipeline

import (
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/features"
	"github.com/alejandrodnm/polyflow/internal/health"
)

// Mode es el modo de ejecución del pipeline.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeBacktest Mode = "backtest"
	ModeCollect  Mode = "collect"
)

// Context acompaña cada Output entregado a un sink.
type Context struct {
	Mode            Mode
	RunID           string
	FeaturesVersion string
	BetaVersion     string

	// Enriquecidos por evento por el consumer.
	ConditionID string
	AssetID     string
}

// Output es el registro único que produce el consumer por evento.
// Los diagnósticos (colisión de orden, dtMs) viajan aquí, no en estado
// global oculto.
type Output struct {
	Event             domain.UnifiedEvent
	Features          *features.Vector
	Dislocation       *features.Signal
	Intent            *domain.OrderIntent
	State             health.State
	OrderingCollision bool
	DtMs              *int64
}

// IntentSink consume los outputs del pipeline. Los sinks nunca mutan estado
// del pipeline; un error devuelto se trata como fatal y aborta el run.
type IntentSink interface {
	Handle(out Output, ctx Context) error
}

// MultiSink reparte cada output a varios sinks en orden.
type MultiSink []IntentSink

func (m MultiSink) Handle(out Output, ctx Context) error {
	for _, s := range m {
		if err := s.Handle(out, ctx); err != nil {
			return err
		}
	}
	return nil
}
