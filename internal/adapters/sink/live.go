// Package sink contiene los consumidores de PipelineOutput. Los sinks están
// desacoplados de la lógica de decisión: nunca mutan estado del pipeline.
package sink

import (
	"log/slog"

	"github.com/alejandrodnm/polyflow/internal/pipeline"
)

// Live es el sink del modo live: loguea señales e intents.
// Placeholder del wiring de ejecución real, que queda fuera de alcance.
type Live struct{}

// NewLive crea un sink Live.
func NewLive() *Live {
	return &Live{}
}

// Handle loguea la dislocación y el intent si existen.
func (l *Live) Handle(out pipeline.Output, ctx pipeline.Context) error {
	if out.Dislocation != nil {
		slog.Info("dislocation",
			"asset_id", ctx.AssetID,
			"condition_id", ctx.ConditionID,
			"expected_prob", out.Dislocation.ExpectedProb,
			"pm_mid", out.Dislocation.PmMid,
			"delta_spd", out.Dislocation.DeltaSPD,
			"state", out.State,
		)
	}
	if out.Intent != nil {
		slog.Info("order intent",
			"intent_id", out.Intent.IntentID,
			"side", out.Intent.Side,
			"price", out.Intent.Price,
			"size", out.Intent.Size,
			"reason", out.Intent.Reason,
		)
	}
	return nil
}
