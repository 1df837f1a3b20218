// Package refresher is the background sweep that keeps cached provider
// bearer tokens ahead of their expiry, so /bearer calls on the hot path
// rarely pay the provider round-trip.
package refresher

import (
	"context"
	"time"

	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/repository"
)

const (
	defaultCountWorkers  = 4                // Number of workers refreshing tokens
	defaultSweepInterval = 5 * time.Minute  // Interval between sweeps
	defaultRefreshWindow = time.Hour        // Refresh tokens expiring within this window
	defaultBatchSize     = 100              // Max resellers per sweep
)

type bearerService interface {
	GetToken(ctx context.Context, resellerID string) (models.BearerToken, error)
}

type Config struct {
	// If not set then defaults are used
	CountWorkers  int
	SweepInterval time.Duration
	RefreshWindow time.Duration
	BatchSize     int
}

type Refresher struct {
	consumer *Consumer
	producer *Producer
}

func New(cfg Config, resellers repository.ResellerRepo, bearer bearerService, l logger.Logger) *Refresher {
	if cfg.CountWorkers == 0 {
		cfg.CountWorkers = defaultCountWorkers
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.RefreshWindow == 0 {
		cfg.RefreshWindow = defaultRefreshWindow
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	return &Refresher{
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			bearer:       bearer,
			logger:       l,
		},
		producer: &Producer{
			interval:  cfg.SweepInterval,
			window:    cfg.RefreshWindow,
			batchSize: cfg.BatchSize,
			resellers: resellers,
			logger:    l,
		},
	}
}

// Process starts the sweep and returns a channel that is closed once both
// the producer and the workers have stopped after ctx cancellation.
func (r *Refresher) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	resellerChan := make(chan string)

	// Start producer to list resellers with tokens near expiry
	producerStopped := r.producer.Produce(ctx, resellerChan)

	// Start consumer to refresh their tokens
	consumerStopped := r.consumer.Consume(ctx, resellerChan)

	go func() {
		defer close(idleStopped)
		defer close(resellerChan)
		<-producerStopped
		<-consumerStopped
		r.consumer.logger.Debug("Refresher stopped")
	}()

	return idleStopped
}
