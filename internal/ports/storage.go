package ports

import (
	"context"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// EventFilter acota qué eventos históricos cargar para un replay.
type EventFilter struct {
	StartMs    int64
	EndMs      int64
	AssetIDs   []string
	ProductIDs []string
}

// SignalStorage es el colaborador de persistencia. Los inserts son por lotes
// con clave idempotente y NUNCA se esperan en el hot path: un fallo se loguea
// y el procesamiento de eventos sigue.
type SignalStorage interface {
	// SaveSignals persiste un lote de señales de dislocación de un run.
	SaveSignals(ctx context.Context, runID string, rows []domain.SignalRecord) error

	// SaveTrades persiste los fills simulados de un run de backtest.
	SaveTrades(ctx context.Context, runID string, trades []domain.SimulatedTrade) error

	// SaveEvents persiste eventos normalizados crudos (modo collect),
	// preservando el ordinal de llegada para el replay.
	SaveEvents(ctx context.Context, events []domain.ReplayEvent) error

	// LoadEvents carga el histórico de eventos para un replay.
	LoadEvents(ctx context.Context, filter EventFilter) ([]domain.ReplayEvent, error)

	// Close cierra la conexión limpiamente.
	Close() error
}
