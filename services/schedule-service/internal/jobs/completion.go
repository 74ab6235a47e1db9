package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/metrics"
)

//go:generate mockgen -source=completion.go -destination=mocks/completer_mock.go -package=mocks

// Completer flips ended active schedules to completed.
type Completer interface {
	CompleteEnded(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// CompletionSweeper marks active schedules whose end has passed as
// completed, in batches so one run never holds many row locks.
type CompletionSweeper struct {
	store     Completer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	batchSize int
	now       func() time.Time
}

func NewCompletionSweeper(store Completer, logger *slog.Logger, m *metrics.Metrics, batchSize int) *CompletionSweeper {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CompletionSweeper{store: store, logger: logger, metrics: m, batchSize: batchSize, now: time.Now}
}

// RunOnce completes every schedule that ended before now and returns the
// total.
func (s *CompletionSweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now()
	total := 0
	for {
		n, err := s.store.CompleteEnded(ctx, cutoff, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("complete ended schedules: %w", err)
		}
		total += n
		if n < s.batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	s.metrics.CompletedN(total)
	if total > 0 {
		s.logger.Info("schedules completed", "count", total, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return total, nil
}
