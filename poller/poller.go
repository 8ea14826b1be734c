// Package poller implements the client-side payment status polling
// loop used after a mobile money initiation: check at a fixed interval
// until a terminal state is seen or the attempt budget runs out.
package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrPollTimeout is returned when the attempt budget is exhausted
// without a terminal state. The underlying payment is not cancelled;
// the payer can still authorize on their device and the status can be
// re-checked later.
var ErrPollTimeout = errors.New("payment status polling timed out")

// CheckFunc performs one status check. terminal reports whether the
// returned status is final.
type CheckFunc func(ctx context.Context) (status string, terminal bool, err error)

type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	Logger      *zap.Logger
}

func New(interval time.Duration, maxAttempts int, logger *zap.Logger) *Poller {
	return &Poller{
		Interval:    interval,
		MaxAttempts: maxAttempts,
		Logger:      logger,
	}
}

// Run polls check until it reports a terminal status, the context is
// cancelled, or MaxAttempts checks have been made. onTerminal is
// invoked once with the final status before Run returns nil. Check
// errors are logged and count as attempts; polling continues.
func (p *Poller) Run(ctx context.Context, check CheckFunc, onTerminal func(status string)) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, terminal, err := check(ctx)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Warn("Status check failed", zap.Int("attempt", attempt), zap.Error(err))
			}
		} else if terminal {
			if onTerminal != nil {
				onTerminal(status)
			}
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return ErrPollTimeout
}
