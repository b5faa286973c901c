// Package ingest validates canonical events and feeds them to the correlator in
// arrival order per domain.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-alarmcorr/internal/engine"
	"github.com/miradorstack/mirador-alarmcorr/internal/metrics"
	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
)

// Processor consumes validated events.
type Processor interface {
	Process(ctx context.Context, ev models.Event) (engine.Decision, error)
}

// ErrStopped is wrapped when an event arrives after Stop.
var ErrStopped = errors.New("ingestor stopped")

// Options configures an Ingestor.
type Options struct {
	// QueueSize bounds each domain lane; a full lane blocks producers.
	QueueSize int
	// VendorRate caps events per second per vendor; <= 0 disables limiting.
	VendorRate  float64
	VendorBurst int
	Logger      *slog.Logger
}

type result struct {
	decision engine.Decision
	err      error
}

type job struct {
	ctx   context.Context
	ev    models.Event
	reply chan result
}

// Ingestor runs one worker per domain lane so that events of a domain are processed in
// the order they were accepted.
type Ingestor struct {
	processor Processor
	logger    *slog.Logger
	lanes     map[models.Domain]chan job
	limiters  map[models.Vendor]*rate.Limiter

	mu      sync.RWMutex
	base    context.Context
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// New builds an Ingestor. Workers do not run until Start.
func New(processor Processor, opts Options) *Ingestor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	lanes := make(map[models.Domain]chan job, len(models.Domains))
	for _, d := range models.Domains {
		lanes[d] = make(chan job, opts.QueueSize)
	}
	var limiters map[models.Vendor]*rate.Limiter
	if opts.VendorRate > 0 {
		burst := opts.VendorBurst
		if burst <= 0 {
			burst = int(opts.VendorRate)
			if burst < 1 {
				burst = 1
			}
		}
		limiters = make(map[models.Vendor]*rate.Limiter, 3)
		for _, v := range []models.Vendor{models.VendorA, models.VendorB, models.VendorC} {
			limiters[v] = rate.NewLimiter(rate.Limit(opts.VendorRate), burst)
		}
	}
	return &Ingestor{
		processor: processor,
		logger:    opts.Logger,
		lanes:     lanes,
		limiters:  limiters,
		base:      context.Background(),
	}
}

// Start launches the lane workers. ctx is used for events submitted asynchronously.
func (i *Ingestor) Start(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started || i.stopped {
		return
	}
	i.started = true
	i.base = ctx
	for domain, lane := range i.lanes {
		i.wg.Add(1)
		go i.work(domain, lane)
	}
	i.logger.Info("ingestor started", slog.Int("lanes", len(i.lanes)))
}

// Stop rejects new events, drains queued ones and waits for the workers to exit.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return
	}
	i.stopped = true
	for _, lane := range i.lanes {
		close(lane)
	}
	i.mu.Unlock()
	i.wg.Wait()
	i.logger.Info("ingestor stopped")
}

// Submit validates ev and queues it without waiting for the correlation decision.
// It blocks while the domain lane is full, until ctx ends.
func (i *Ingestor) Submit(ctx context.Context, ev models.Event) error {
	return i.enqueue(ctx, ev, nil)
}

// Ingest validates ev, queues it and waits for its correlation decision.
func (i *Ingestor) Ingest(ctx context.Context, ev models.Event) (engine.Decision, error) {
	reply := make(chan result, 1)
	if err := i.enqueue(ctx, ev, reply); err != nil {
		return engine.Decision{}, err
	}
	select {
	case res := <-reply:
		return res.decision, res.err
	case <-ctx.Done():
		return engine.Decision{}, utils.NewAppError(utils.KindUnavailable, "ingest", "waiting for decision", ctx.Err())
	}
}

// Pending reports queued events per domain.
func (i *Ingestor) Pending() map[models.Domain]int {
	out := make(map[models.Domain]int, len(i.lanes))
	for d, lane := range i.lanes {
		out[d] = len(lane)
	}
	return out
}

func (i *Ingestor) enqueue(ctx context.Context, ev models.Event, reply chan result) error {
	if err := Validate(ev); err != nil {
		metrics.ObserveEvent(string(ev.Domain), metrics.OutcomeInvalid)
		i.logger.Warn("rejected invalid event", slog.String("event", ev.Key().String()), slog.Any("error", err))
		return err
	}

	if limiter := i.limiters[ev.Vendor]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			metrics.ObserveEvent(string(ev.Domain), metrics.OutcomeRejected)
			return utils.NewAppError(utils.KindUnavailable, "ingest", "vendor rate limit exceeded", err)
		}
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stopped {
		metrics.ObserveEvent(string(ev.Domain), metrics.OutcomeRejected)
		return utils.NewAppError(utils.KindUnavailable, "ingest", "not accepting events", ErrStopped)
	}

	j := job{ctx: i.base, ev: ev.Clone(), reply: reply}
	if reply != nil {
		j.ctx = ctx
	}
	select {
	case i.lanes[ev.Domain] <- j:
		metrics.ObserveEvent(string(ev.Domain), metrics.OutcomeAccepted)
		return nil
	case <-ctx.Done():
		metrics.ObserveEvent(string(ev.Domain), metrics.OutcomeRejected)
		i.logger.Warn("domain queue full; event rejected", slog.String("domain", string(ev.Domain)), slog.String("event", ev.Key().String()))
		return utils.NewAppError(utils.KindUnavailable, "ingest", "domain queue full", ctx.Err())
	}
}

func (i *Ingestor) work(domain models.Domain, lane <-chan job) {
	defer i.wg.Done()
	for j := range lane {
		decision, err := i.processor.Process(j.ctx, j.ev)
		if err != nil {
			i.logger.Error("correlation failed",
				slog.String("domain", string(domain)),
				slog.String("event", j.ev.Key().String()),
				slog.Any("error", err),
			)
		}
		if j.reply != nil {
			j.reply <- result{decision: decision, err: err}
		}
	}
}
