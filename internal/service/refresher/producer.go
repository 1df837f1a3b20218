package refresher

import (
	"context"
	"time"

	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/repository"
)

type Producer struct {
	interval  time.Duration
	window    time.Duration
	batchSize int
	resellers repository.ResellerRepo
	logger    logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- string) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "window", p.window)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				p.logger.Debug("Producer tick: listing refresh candidates")

				deadline := time.Now().Add(p.window)
				resellers, err := p.resellers.ListRefreshCandidates(ctx, deadline)
				if err != nil {
					p.logger.Error("Failed to list refresh candidates", "error", err)
					continue
				}
				if len(resellers) > p.batchSize {
					resellers = resellers[:p.batchSize]
				}

				// Send reseller IDs to the output channel
				for _, reseller := range resellers {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending resellers")
						return
					case out <- reseller.ID:
						p.logger.Debug("Reseller sent to channel", "reseller_id", reseller.ID)
					}
				}
			}
		}
	}()

	return idleStopped
}
