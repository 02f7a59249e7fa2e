package replay

import (
	"sort"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// sorter.go: orden canónico del replay. ExchangeTs ascendente; a igual
// timestamp, pmBook antes que spot; y a igual kind, ArrivalOrdinal ascendente
// para estabilizar cargas históricas por chunks.

// kindPriority fija la prioridad de desempate por variante.
func kindPriority(k domain.EventKind) int {
	switch k {
	case domain.KindPmBook:
		return 0
	case domain.KindSpot:
		return 1
	default:
		return 99
	}
}

// Sort devuelve una copia ordenada según el orden canónico.
func Sort(events []domain.ReplayEvent) []domain.ReplayEvent {
	ordered := make([]domain.ReplayEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ExchangeTs != b.ExchangeTs {
			return a.ExchangeTs < b.ExchangeTs
		}
		pa, pb := kindPriority(a.Kind), kindPriority(b.Kind)
		if pa != pb {
			return pa < pb
		}
		return a.ArrivalOrdinal < b.ArrivalOrdinal
	})
	return ordered
}
