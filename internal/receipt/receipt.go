package receipt

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kasirinaja/checkout/internal/domain"
)

type Sender interface {
	Send(ctx context.Context, tx domain.Transaction, email string) error
}

// LogSender records the receipt instead of mailing it.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, tx domain.Transaction, email string) error {
	s.Logger.Info().
		Str("transaction_id", tx.ID).
		Str("email", email).
		Str("total", tx.Total.String()).
		Str("currency", tx.Currency).
		Int("lines", len(tx.Items)).
		Msg("receipt sent")
	return nil
}

// Dispatcher sends receipts in the background. Failures are logged and never reach the sale.
type Dispatcher struct {
	sender  Sender
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, logger zerolog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		sender:  sender,
		logger:  logger.With().Str("component", "receipt").Logger(),
		timeout: timeout,
	}
}

func (d *Dispatcher) Dispatch(tx domain.Transaction, email string) {
	if d == nil || d.sender == nil || email == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.sender.Send(ctx, tx, email); err != nil {
			d.logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg("receipt delivery failed")
		}
	}()
}

// Wait blocks until every dispatched receipt has finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
