package broker

import (
	"context"
	"sync"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/metrics"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	queueSize  = 1024
	sweepBatch = 100
	maxBackoff = 5 * time.Minute
)

// Retrier applies a single commission in its own transaction.
type Retrier interface {
	Retry(ctx context.Context, entry modelstorage.CommissionEntry) error
}

// PendingSource lists commissions that were never applied.
type PendingSource interface {
	PendingCommissions(ctx context.Context, limit int) ([]modelstorage.CommissionEntry, error)
}

type Broker struct {
	ctx     context.Context
	log     *zerolog.Logger
	queue   chan modelqueue.CommissionQueueEntry
	wg      *sync.WaitGroup
	retrier Retrier
	pending PendingSource
	cfg     *config.QueueConfig
	timeout time.Duration
}

type RetryWorker struct {
	ID         int
	ctx        context.Context
	log        *zerolog.Logger
	queue      chan modelqueue.CommissionQueueEntry
	retrier    Retrier
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

func InitBroker(ctx context.Context, retrier Retrier, pending PendingSource, cfg *config.QueueConfig, storageTimeout time.Duration, log *zerolog.Logger, wg *sync.WaitGroup) *Broker {
	return &Broker{
		ctx:     ctx,
		log:     log,
		queue:   make(chan modelqueue.CommissionQueueEntry, queueSize),
		wg:      wg,
		retrier: retrier,
		pending: pending,
		cfg:     cfg,
		timeout: storageTimeout,
	}
}

// Enqueue schedules a commission for retry. It never blocks: when the queue is full the
// entry is dropped and left for the next sweep.
func (b *Broker) Enqueue(entry modelstorage.CommissionEntry) {
	select {
	case b.queue <- modelqueue.CommissionQueueEntry{Commission: entry, LastChecked: time.Now()}:
		metrics.CommissionQueueLength.Inc()
	default:
		b.log.Warn().Int64("deposit", entry.DepositID).Msg("commission queue is full, leaving entry to sweep")
	}
}

func (b *Broker) ListenAndProcess() {
	b.wg.Add(1)
	go func() {
		b.log.Info().Msg("started listening to queue for pending commissions")
		defer b.wg.Done()
		g, _ := errgroup.WithContext(b.ctx)
		for i := 0; i < b.cfg.WorkerNumber; i++ {
			w := &RetryWorker{
				ID:         i,
				ctx:        b.ctx,
				log:        b.log,
				queue:      b.queue,
				retrier:    b.retrier,
				maxRetries: b.cfg.RetryNumber,
				backoff:    b.cfg.RetryBackoff,
				timeout:    b.timeout,
			}
			g.Go(w.processAsync)
		}
		g.Go(b.sweepAsync)
		<-b.ctx.Done()
		err := g.Wait()
		if err != nil {
			b.log.Error().Err(err).Msg("closing errgroup failed")
		}
		b.log.Info().Msg("stopped listening to queue for pending commissions")
	}()
}

// Sweep enqueues commissions of committed deposits that have no commission row yet.
func (b *Broker) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	entries, err := b.pending.PendingCommissions(ctx, sweepBatch)
	if err != nil {
		b.log.Error().Err(err).Msg("commission sweep failed")
		return
	}
	if len(entries) > 0 {
		b.log.Info().Int("count", len(entries)).Msg("commission sweep found pending entries")
	}
	for _, entry := range entries {
		b.Enqueue(entry)
	}
}

func (b *Broker) sweepAsync() error {
	b.Sweep(b.ctx)
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return nil
		case <-ticker.C:
			b.Sweep(b.ctx)
		}
	}
}

// delay doubles the base backoff on every retry.
func (w *RetryWorker) delay(retry int) time.Duration {
	d := w.backoff
	for i := 0; i < retry && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (w *RetryWorker) processAsync() error {
	for {
		var record modelqueue.CommissionQueueEntry
		select {
		case <-w.ctx.Done():
			return nil
		case record = <-w.queue:
			metrics.CommissionQueueLength.Dec()
		}

		if wait := time.Until(record.LastChecked.Add(w.delay(record.RetryCount))); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-w.ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}

		ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
		err := w.retrier.Retry(ctx, record.Commission)
		cancel()
		deposit := record.Commission.DepositID
		if err == nil {
			metrics.RecordCommissionRetry("applied")
			w.log.Info().Int("wid", w.ID).Int64("deposit", deposit).Msg("commission retry succeeded")
			continue
		}

		record.RetryCount++
		if record.RetryCount >= w.maxRetries {
			// the periodic sweep picks it up again
			metrics.RecordCommissionRetry("abandoned")
			w.log.Warn().Err(err).Int("wid", w.ID).Int64("deposit", deposit).Msg("abandonment due to retry limit exceeding")
			continue
		}
		metrics.RecordCommissionRetry("failed")
		w.log.Warn().Err(err).Int("wid", w.ID).Int64("deposit", deposit).Msg("could not apply commission, sending back to queue")
		record.LastChecked = time.Now()
		select {
		case w.queue <- record:
			metrics.CommissionQueueLength.Inc()
		default:
			w.log.Warn().Int64("deposit", deposit).Msg("commission queue is full, leaving entry to sweep")
		}
	}
}
