// Package engine decides which incident each canonical alarm belongs to.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-alarmcorr/internal/metrics"
	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/store"
	"github.com/miradorstack/mirador-alarmcorr/internal/topology"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
	"github.com/miradorstack/mirador-alarmcorr/internal/window"
)

// AttachPolicy controls how many incidents an event joins when several are candidates.
type AttachPolicy string

const (
	// AttachNearest joins only the incident with the most recent member.
	AttachNearest AttachPolicy = "nearest"
	// AttachAll joins every candidate incident, so one event can contribute to several.
	AttachAll AttachPolicy = "all"
)

// DefaultFallbackConfidence is used when the scorer fails.
const DefaultFallbackConfidence = 0.5

// Config holds correlation tunables.
type Config struct {
	WindowSeconds      int
	AttachPolicy       AttachPolicy
	FallbackConfidence float64
}

// Decision reports what the correlator did with one event.
type Decision struct {
	Event       models.EventKey
	IncidentIDs []string
	Opened      bool
	Duplicate   bool
	Confidence  float64
}

// Correlator attaches events to incidents. Every decision and every close sweep runs
// inside one critical section, so two racing events cannot both open an incident for
// the same fault and an append is strictly ordered against a close.
type Correlator struct {
	logger    *slog.Logger
	cfg       Config
	index     *window.Index
	clock     *window.Clock
	store     *store.Store
	topology  *topology.Topology
	scorer    Scorer
	estimator Estimator
	latencies *utils.LatencyTracker

	mu sync.Mutex
}

// NewCorrelator wires the correlator. A nil scorer or estimator falls back to the
// heuristic scorer and the default-priority estimator.
func NewCorrelator(
	logger *slog.Logger,
	cfg Config,
	index *window.Index,
	clock *window.Clock,
	incidents *store.Store,
	topo *topology.Topology,
	scorer Scorer,
	estimator Estimator,
) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WindowSeconds < 1 {
		cfg.WindowSeconds = 30
	}
	if cfg.AttachPolicy == "" {
		cfg.AttachPolicy = AttachNearest
	}
	if cfg.FallbackConfidence <= 0 || cfg.FallbackConfidence > 1 {
		cfg.FallbackConfidence = DefaultFallbackConfidence
	}
	if index == nil {
		index = window.NewIndex(cfg.WindowSeconds)
	}
	if clock == nil {
		clock = window.NewClock(nil)
	}
	if incidents == nil {
		incidents = store.New(store.Options{WindowSeconds: cfg.WindowSeconds, Logger: logger})
	}
	if scorer == nil {
		scorer = NewHeuristicScorer(DefaultScoringWeights(), cfg.WindowSeconds)
	}
	if estimator == nil {
		estimator, _ = NewPriorityEstimator(nil)
	}
	return &Correlator{
		logger:    logger,
		cfg:       cfg,
		index:     index,
		clock:     clock,
		store:     incidents,
		topology:  topo,
		scorer:    scorer,
		estimator: estimator,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Store exposes the incident store for read paths.
func (c *Correlator) Store() *store.Store {
	return c.store
}

// Process correlates one validated event and commits the result to the store.
func (c *Correlator) Process(ctx context.Context, ev models.Event) (Decision, error) {
	if !models.ValidTimestamp(ev.Timestamp) {
		metrics.ObserveEvent(string(ev.Domain), metrics.OutcomeInvalid)
		return Decision{Event: ev.Key()}, utils.NewAppError(utils.KindInvalidEvent, "engine.process", fmt.Sprintf("timestamp %d out of range", ev.Timestamp), nil)
	}

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.ObserveDecision(elapsed)
		c.latencies.Observe(elapsed)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	key := ev.Key()
	decision := Decision{Event: key}

	c.clock.Observe(ev.Timestamp)
	c.index.Insert(ev)
	metrics.SetWindowEvents(c.index.Len())

	if holders := c.store.OpenContaining([]models.EventKey{key}); len(holders) > 0 {
		decision.Duplicate = true
		for _, inc := range holders {
			decision.IncidentIDs = append(decision.IncidentIDs, inc.ID)
		}
		decision.Confidence = holders[0].Confidence
		metrics.ObserveEvent(string(ev.Domain), metrics.OutcomeDuplicate)
		c.logger.Debug("duplicate event re-attached", slog.String("event", key.String()), slog.Any("incidents", decision.IncidentIDs))
		return decision, nil
	}

	radius := int64(c.cfg.WindowSeconds)
	candidates := c.index.QueryNodes(ev.Timestamp, radius, func(other models.Event) bool {
		return other.Key() != key && c.topology.Affine(ev, other)
	})
	keys := make([]models.EventKey, 0, len(candidates))
	for _, cand := range candidates {
		keys = append(keys, cand.Key())
	}

	targets := c.selectTargets(c.store.OpenContaining(keys))
	if len(targets) == 0 {
		inc := c.open(ctx, ev)
		decision.Opened = true
		decision.IncidentIDs = []string{inc.ID}
		decision.Confidence = inc.Confidence
		c.publishStats()
		return decision, nil
	}

	for _, target := range targets {
		members := make([]models.Event, 0, len(target.Members)+1)
		members = append(members, target.Members...)
		members = append(members, ev)

		enrichment := c.enrich(ctx, members, target.Confidence)
		inc, err := c.store.AppendMember(target.ID, ev, enrichment)
		if err != nil {
			metrics.ObserveEvent(string(ev.Domain), metrics.OutcomeError)
			return decision, fmt.Errorf("attach %s to %s: %w", key, target.ID, err)
		}
		metrics.IncidentAppended()
		if len(decision.IncidentIDs) == 0 {
			decision.Confidence = inc.Confidence
		}
		decision.IncidentIDs = append(decision.IncidentIDs, inc.ID)
		c.logger.Debug("event attached",
			slog.String("event", key.String()),
			slog.String("incident_id", inc.ID),
			slog.Int("members", len(inc.Members)),
			slog.Float64("confidence", inc.Confidence),
		)
	}
	c.publishStats()
	return decision, nil
}

// selectTargets orders candidate incidents by most recent member, then earliest
// opening, then id, and applies the attach policy.
func (c *Correlator) selectTargets(open []models.Incident) []models.Incident {
	if len(open) == 0 {
		return nil
	}
	sort.Slice(open, func(i, j int) bool {
		li, lj := open[i].LastSeen(), open[j].LastSeen()
		if li != lj {
			return li > lj
		}
		if open[i].OpenedAt != open[j].OpenedAt {
			return open[i].OpenedAt < open[j].OpenedAt
		}
		return open[i].ID < open[j].ID
	})
	if c.cfg.AttachPolicy == AttachAll {
		return open
	}
	return open[:1]
}

func (c *Correlator) open(ctx context.Context, ev models.Event) models.Incident {
	inc := c.store.Create(ev, c.enrich(ctx, []models.Event{ev}, 0))
	metrics.IncidentOpened()
	c.logger.Debug("incident opened",
		slog.String("incident_id", inc.ID),
		slog.String("domain", string(ev.Domain)),
		slog.String("node_id", ev.NodeID),
	)
	return inc
}

// enrich scores the prospective membership. Strategy failures never block the decision:
// a failed score falls back to the configured default with no root cause.
// The result never drops below previous.
func (c *Correlator) enrich(ctx context.Context, members []models.Event, previous float64) store.Enrichment {
	confidence, err := c.scorer.Score(ctx, members)
	scored := err == nil && !math.IsNaN(confidence)
	if !scored {
		metrics.EnrichmentFailed(metrics.StageScore)
		c.logger.Warn("confidence scoring failed; using fallback", slog.Int("members", len(members)), slog.Any("error", err))
		confidence = c.cfg.FallbackConfidence
	}
	confidence = clamp(confidence, 0, 1)
	if confidence < previous {
		confidence = previous
	}

	enrichment := store.Enrichment{Confidence: confidence}
	if !scored || len(members) < 2 {
		return enrichment
	}
	rc, err := c.estimator.Estimate(ctx, members)
	if err != nil {
		metrics.EnrichmentFailed(metrics.StageRootCause)
		c.logger.Warn("root-cause estimation failed", slog.Int("members", len(members)), slog.Any("error", err))
		return enrichment
	}
	enrichment.RootCause = rc
	return enrichment
}

// Sweep closes incidents whose latest member is more than the window older than now.
func (c *Correlator) Sweep(now int64) []models.Incident {
	c.mu.Lock()
	defer c.mu.Unlock()

	closed := c.store.CloseExpired(now)
	if len(closed) > 0 {
		metrics.IncidentsClosed(len(closed))
		for _, inc := range closed {
			c.logger.Info("incident closed",
				slog.String("incident_id", inc.ID),
				slog.String("last_seen", utils.FormatUnix(inc.LastSeen())),
				slog.Int64("span_seconds", utils.SpanSeconds(inc.OpenedAt, inc.LastSeen())),
				slog.Int("members", len(inc.Members)),
				slog.Bool("correlated", inc.Correlated()),
				slog.Float64("confidence", inc.Confidence),
			)
		}
	}
	c.publishStats()
	return closed
}

// SweepNow sweeps at the current event-time clock. Nothing happens before the first event.
func (c *Correlator) SweepNow() []models.Incident {
	now, ok := c.clock.Now()
	if !ok {
		return nil
	}
	return c.Sweep(now)
}

// RunSweeper closes expired incidents every interval until ctx is cancelled.
func (c *Correlator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SweepNow()
			if count := c.latencies.Count(); count > 0 {
				c.logger.Debug("correlation latency", slog.Duration("p95", c.latencies.Percentile(95)), slog.Int("samples", count))
			}
		}
	}
}

func (c *Correlator) publishStats() {
	metrics.SetOpenIncidents(c.store.Stats().Open)
	metrics.SetWindowEvents(c.index.Len())
}
