package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
)

// Estimator picks the probable originating node of an incident from its members.
type Estimator interface {
	Estimate(ctx context.Context, members []models.Event) (*models.RootCause, error)
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(ctx context.Context, members []models.Event) (*models.RootCause, error)

// Estimate implements Estimator.
func (f EstimatorFunc) Estimate(ctx context.Context, members []models.Event) (*models.RootCause, error) {
	return f(ctx, members)
}

// PriorityEstimator chooses the member with the highest severity, then the earliest
// timestamp, then the highest-priority domain. Node id and vendor settle exact ties so
// the result depends only on the member set.
type PriorityEstimator struct {
	rank map[models.Domain]int
}

// NewPriorityEstimator builds an estimator; an empty priority uses RAN > CORE > TRANSPORT.
func NewPriorityEstimator(priority []models.Domain) (*PriorityEstimator, error) {
	if len(priority) == 0 {
		priority = models.Domains
	}
	rank := make(map[models.Domain]int, len(priority))
	for i, d := range priority {
		if _, dup := rank[d]; dup {
			return nil, fmt.Errorf("domain %s listed twice in root-cause priority", d)
		}
		rank[d] = i
	}
	return &PriorityEstimator{rank: rank}, nil
}

// Estimate implements Estimator.
func (p *PriorityEstimator) Estimate(_ context.Context, members []models.Event) (*models.RootCause, error) {
	if len(members) == 0 {
		return nil, errors.New("no members to estimate root cause from")
	}
	best := members[0]
	for _, m := range members[1:] {
		if p.before(m, best) {
			best = m
		}
	}
	return &models.RootCause{Domain: best.Domain, NodeID: best.NodeID}, nil
}

func (p *PriorityEstimator) before(a, b models.Event) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra > rb
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if da, db := p.domainRank(a.Domain), p.domainRank(b.Domain); da != db {
		return da < db
	}
	if a.NodeID != b.NodeID {
		return a.NodeID < b.NodeID
	}
	return a.Vendor < b.Vendor
}

func (p *PriorityEstimator) domainRank(d models.Domain) int {
	if r, ok := p.rank[d]; ok {
		return r
	}
	return len(p.rank)
}

// FallbackEstimator asks Primary first and uses Secondary when it fails.
type FallbackEstimator struct {
	Primary   Estimator
	Secondary Estimator
	Logger    *slog.Logger
}

// Estimate implements Estimator.
func (f FallbackEstimator) Estimate(ctx context.Context, members []models.Event) (*models.RootCause, error) {
	if f.Primary == nil && f.Secondary == nil {
		return nil, errors.New("no estimator configured")
	}
	if f.Primary != nil {
		rc, err := f.Primary.Estimate(ctx, members)
		if err == nil {
			return rc, nil
		}
		if f.Secondary == nil {
			return nil, err
		}
		if f.Logger != nil {
			f.Logger.Debug("primary estimator failed; using secondary", slog.Any("error", err))
		}
	}
	return f.Secondary.Estimate(ctx, members)
}
