package pipeline

// hotstate.go: caches calientes de último spot y último best book.
// Viven dentro del Runner (nada de estado a nivel de módulo) para que varios
// runs independientes puedan convivir en un proceso sin contaminarse.

type spotState struct {
	productID  string
	baseAsset  string
	quoteAsset string
	mid        float64
	updatedAt  int64
}

type bookState struct {
	bestBid   *float64
	bestAsk   *float64
	mid       *float64
	updatedAt int64
}

// merge aplica una actualización parcial del book: los lados ausentes en el
// evento conservan el valor previo.
func (b bookState) merge(bestBid, bestAsk, mid *float64, ts int64) bookState {
	next := b
	if bestBid != nil {
		next.bestBid = bestBid
	}
	if bestAsk != nil {
		next.bestAsk = bestAsk
	}
	if mid != nil {
		next.mid = mid
	}
	next.updatedAt = ts
	return next
}

func (b bookState) hasBothSides() bool {
	return b.bestBid != nil && b.bestAsk != nil
}
