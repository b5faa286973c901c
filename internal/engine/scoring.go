package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
)

// Scorer turns an incident's full member list into a confidence in [0,1]. Implementations
// must be deterministic in the member set and non-decreasing as members are added.
type Scorer interface {
	Score(ctx context.Context, members []models.Event) (float64, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, members []models.Event) (float64, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, members []models.Event) (float64, error) {
	return f(ctx, members)
}

// ScoringWeights parameterises HeuristicScorer.
type ScoringWeights struct {
	Minor    float64 `yaml:"minor"`
	Major    float64 `yaml:"major"`
	Critical float64 `yaml:"critical"`
	// DomainBonus shrinks the residual doubt once per extra domain involved.
	DomainBonus float64 `yaml:"domainBonus"`
	// SpreadBonus shrinks the residual doubt as members span more of the window.
	SpreadBonus float64 `yaml:"spreadBonus"`
	Cap         float64 `yaml:"cap"`
}

// DefaultScoringWeights returns the shipped weights.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Minor:       0.15,
		Major:       0.3,
		Critical:    0.5,
		DomainBonus: 0.25,
		SpreadBonus: 0.1,
		Cap:         0.99,
	}
}

// Validate checks every weight lies in [0,1) and the cap in (0,1].
func (w ScoringWeights) Validate() error {
	for name, v := range map[string]float64{
		"minor": w.Minor, "major": w.Major, "critical": w.Critical,
		"domainBonus": w.DomainBonus, "spreadBonus": w.SpreadBonus,
	} {
		if v < 0 || v >= 1 || math.IsNaN(v) {
			return fmt.Errorf("scoring weight %s must be in [0,1), got %v", name, v)
		}
	}
	if w.Cap <= 0 || w.Cap > 1 {
		return fmt.Errorf("scoring cap must be in (0,1], got %v", w.Cap)
	}
	return nil
}

// HeuristicScorer combines per-member severity evidence as a noisy-OR and shrinks the
// remaining doubt for domain diversity and time spread. Every factor can only grow as
// members are added, so the score never decreases for a growing incident.
type HeuristicScorer struct {
	weights       ScoringWeights
	windowSeconds int64
}

// NewHeuristicScorer builds a scorer; windowSeconds normalises the time spread.
func NewHeuristicScorer(weights ScoringWeights, windowSeconds int) *HeuristicScorer {
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	return &HeuristicScorer{weights: weights, windowSeconds: int64(windowSeconds)}
}

// Score implements Scorer.
func (h *HeuristicScorer) Score(_ context.Context, members []models.Event) (float64, error) {
	if len(members) == 0 {
		return 0, nil
	}

	counts := make(map[models.Severity]int, 3)
	minTS, maxTS := members[0].Timestamp, members[0].Timestamp
	for _, m := range members {
		counts[m.Severity]++
		if m.Timestamp < minTS {
			minTS = m.Timestamp
		}
		if m.Timestamp > maxTS {
			maxTS = m.Timestamp
		}
	}

	// Powers over per-severity counts keep the result independent of member order.
	residual := math.Pow(1-h.weights.Minor, float64(counts[models.SeverityMinor])) *
		math.Pow(1-h.weights.Major, float64(counts[models.SeverityMajor])) *
		math.Pow(1-h.weights.Critical, float64(counts[models.SeverityCritical]))

	domains := len(models.DomainsOf(members))
	residual *= math.Pow(1-h.weights.DomainBonus, float64(domains-1))

	spread := float64(maxTS-minTS) / float64(h.windowSeconds)
	if spread > 1 {
		spread = 1
	}
	residual *= 1 - h.weights.SpreadBonus*spread

	return math.Min(h.weights.Cap, clamp(1-residual, 0, 1)), nil
}

// FallbackScorer asks Primary first and falls back to Secondary when it fails, which lets
// a remote model degrade to the local heuristic.
type FallbackScorer struct {
	Primary   Scorer
	Secondary Scorer
	Logger    *slog.Logger
}

// Score implements Scorer.
func (f FallbackScorer) Score(ctx context.Context, members []models.Event) (float64, error) {
	if f.Primary == nil && f.Secondary == nil {
		return 0, errors.New("no scorer configured")
	}
	if f.Primary != nil {
		score, err := f.Primary.Score(ctx, members)
		if err == nil {
			return score, nil
		}
		if f.Secondary == nil {
			return 0, err
		}
		if f.Logger != nil {
			f.Logger.Debug("primary scorer failed; using secondary", slog.Any("error", err))
		}
	}
	return f.Secondary.Score(ctx, members)
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
