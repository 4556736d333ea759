package reconcile

import (
	"context"
	"fmt"

	"ddash/internal/artifact"
	"ddash/internal/config"
	"ddash/internal/quality"
	"ddash/internal/services"
)

// Inspect detects, parses and analyzes one raw document without touching
// the manifest. An empty format runs detection over formats, or over every
// registered format when none are given.
func (e *Engine) Inspect(ctx context.Context, data []byte, format string, formats ...string) (string, *artifact.Artifact, error) {
	if format == "" {
		detected, ok := e.registry.Detect(data, formats...)
		if !ok {
			return "", nil, services.Wrap(services.ErrUnknownFormat, "reconcile", "inspect",
				fmt.Sprintf("no registered format recognizes the data (known: %v)", e.registry.Formats()), nil)
		}
		format = detected
	}

	if timeout := e.cfg.ParseTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	table, err := e.registry.Parse(ctx, data, format)
	if err != nil {
		return format, nil, err
	}
	doc, err := quality.Analyze(table, qualitySettings(e.cfg))
	if err != nil {
		return format, nil, err
	}
	return format, doc, nil
}

func qualitySettings(cfg *config.Config) quality.Settings {
	return quality.Settings{
		MaxDeltaT:        cfg.MaxDeltaT(),
		ResampleInterval: cfg.ResampleInterval(),
		FailRatio:        cfg.Quality.FailRatio,
	}
}
