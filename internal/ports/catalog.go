package ports

import (
	"context"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// MarketCatalog mantiene el conjunto de mercados activos que los feeds usan
// para (re)suscribirse.
type MarketCatalog interface {
	// Start hace el primer refresh y arranca el refresco periódico.
	Start(ctx context.Context) error

	// Stop detiene el refresco periódico.
	Stop()

	// ActiveMarkets devuelve un snapshot de los mercados activos.
	ActiveMarkets() []domain.MarketDescriptor

	// ActiveAssetIDs devuelve los asset ids de todos los mercados activos.
	ActiveAssetIDs() []string

	// OnUpdate registra un listener que se invoca tras cada refresh.
	OnUpdate(func(markets []domain.MarketDescriptor))
}

// FeedHandle controla el ciclo de vida de un feed en vivo. Stop cierra la
// conexión subyacente; los eventos ya aceptados por el consumer corren hasta
// completarse.
type FeedHandle interface {
	Stop()
}
