package collector

import (
	"context"

	"github.com/rs/zerolog"

	"DeepTrader/internal/model"
)

// Executor receives the engine's latest order intent. Fills never call
// back into the learning loop; the portfolio only sees price marks.
type Executor interface {
	Execute(ctx context.Context, intent model.Intent) error
	Name() string
}

// PaperExecutor acknowledges every intent without touching an exchange.
type PaperExecutor struct {
	log zerolog.Logger
}

func NewPaperExecutor(log zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{log: log.With().Str("component", "paper_executor").Logger()}
}

func (e *PaperExecutor) Name() string { return "paper" }

func (e *PaperExecutor) Execute(_ context.Context, intent model.Intent) error {
	if intent.Action == model.ActionHold {
		e.log.Debug().Str("symbol", intent.Symbol).Msg("Holding, no order placed")
		return nil
	}
	e.log.Info().
		Str("symbol", intent.Symbol).
		Str("action", intent.Name).
		Float64("units", intent.Units).
		Float64("price", intent.Price).
		Msg("Paper fill acknowledged")
	return nil
}
