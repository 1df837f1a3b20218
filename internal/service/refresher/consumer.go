package refresher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/service/provider"
)

type Consumer struct {
	countWorkers int

	// The provider may return rate-limit errors
	// If it does, workers will wait until the time is up
	waitUntil atomic.Int64

	bearer bearerService
	logger logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan string) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan string) {
	for {
		// Wait until rate limit is passed or context is done
		waitUntil := time.Unix(c.waitUntil.Load(), 0)
		if waitUntil.After(time.Now()) {
			c.logger.Debug("Worker is waiting for rate limit to reset", "wait_until", waitUntil)

			select {
			case <-ctx.Done():
				continue
			case <-time.After(time.Until(waitUntil)):
				c.logger.Debug("Worker finished waiting for rate limit to reset")
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case resellerID, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}

			_, err := c.bearer.GetToken(ctx, resellerID)
			var provErr *provider.ProviderError

			switch {
			case err == nil:
				c.logger.Debug("Bearer token refreshed", "reseller_id", resellerID)

			case errors.As(err, &provErr) && provErr.Code == provider.CodeRetryAfter:
				c.logger.Info("Rate limit exceeded, waiting", "retry_after", provErr.RetryAfter)
				c.waitUntil.Store(time.Now().Add(provErr.RetryAfter).Unix())

			default:
				c.logger.Error("Failed to refresh bearer token", "error", err, "reseller_id", resellerID)
			}
		}
	}
}
