package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job is one maintenance pass. It returns the number of records it touched.
type Job func(ctx context.Context) (int64, error)

// Run executes job once when interval is zero, otherwise every interval until ctx is done.
// A failed pass is logged and retried on the next tick.
func Run(ctx context.Context, logger zerolog.Logger, name string, interval time.Duration, job Job) error {
	logger = logger.With().Str("job", name).Logger()
	if interval <= 0 {
		n, err := job(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int64("affected", n).Msg("Maintenance job finished")
		return nil
	}

	logger.Info().Dur("interval", interval).Msg("Starting maintenance loop")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := job(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Maintenance pass failed")
		} else {
			logger.Debug().Int64("affected", n).Msg("Maintenance pass finished")
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down maintenance loop")
			return nil
		case <-ticker.C:
		}
	}
}
