package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/metrics"
	"github.com/JakeFAU/roastd/internal/roast"
)

// Analyzer implements roast.Analyzer on top of a roast.VisionModel.
type Analyzer struct {
	model  roast.VisionModel
	prompt string
	logger *zap.Logger
}

// NewAnalyzer wires an Analyzer. An empty prompt selects Prompt.
func NewAnalyzer(model roast.VisionModel, prompt string, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompt == "" {
		prompt = Prompt
	}
	return &Analyzer{model: model, prompt: prompt, logger: logger.Named("analysis")}
}

// Analyze sends the raster to the model and parses its reply. Transport and
// quota failures are returned; unparseable replies degrade to Fallback.
func (a *Analyzer) Analyze(ctx context.Context, image roast.Raster) (roast.Critique, error) {
	reply, err := a.model.Critique(ctx, image, a.prompt)
	if err != nil {
		return roast.Critique{}, fmt.Errorf("vision model: %w", err)
	}
	result, err := Parse(reply)
	if err != nil {
		a.logger.Warn("model reply unusable, using fallback critique",
			zap.Error(err),
			zap.Int("reply_len", len(reply)),
		)
		metrics.ObserveFallback()
		return roast.Critique{Result: Fallback(), Degraded: true}, nil
	}
	a.logger.Debug("analysis parsed",
		zap.Int("rating", result.OverallRating),
		zap.Int("flaws", len(result.DesignFlaws)),
	)
	return roast.Critique{Result: result}, nil
}
