package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
)

func TestPriorityEstimatorOrdering(t *testing.T) {
	cases := []struct {
		name    string
		members []models.Event
		want    models.RootCause
	}{
		{
			name: "highest severity wins",
			members: []models.Event{
				{Timestamp: 1000, Domain: models.DomainRAN, NodeID: "Cell-1", Severity: models.SeverityMajor},
				{Timestamp: 1010, Domain: models.DomainTransport, NodeID: "Link-1", Severity: models.SeverityCritical},
			},
			want: models.RootCause{Domain: models.DomainTransport, NodeID: "Link-1"},
		},
		{
			name: "earliest wins at equal severity",
			members: []models.Event{
				{Timestamp: 1005, Domain: models.DomainRAN, NodeID: "Cell-1", Severity: models.SeverityMajor},
				{Timestamp: 1000, Domain: models.DomainCore, NodeID: "Core-1", Severity: models.SeverityMajor},
			},
			want: models.RootCause{Domain: models.DomainCore, NodeID: "Core-1"},
		},
		{
			name: "domain priority settles simultaneous alarms",
			members: []models.Event{
				{Timestamp: 1000, Domain: models.DomainTransport, NodeID: "Link-1", Severity: models.SeverityMinor},
				{Timestamp: 1000, Domain: models.DomainRAN, NodeID: "Cell-1", Severity: models.SeverityMinor},
			},
			want: models.RootCause{Domain: models.DomainRAN, NodeID: "Cell-1"},
		},
	}

	estimator, err := NewPriorityEstimator(nil)
	if err != nil {
		t.Fatalf("estimator: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := estimator.Estimate(context.Background(), tc.members)
			if err != nil {
				t.Fatalf("estimate: %v", err)
			}
			if *got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, *got)
			}
			reversed := []models.Event{tc.members[1], tc.members[0]}
			again, _ := estimator.Estimate(context.Background(), reversed)
			if *again != *got {
				t.Fatalf("result depends on member order: %+v vs %+v", *again, *got)
			}
		})
	}
}

func TestPriorityEstimatorCustomPriority(t *testing.T) {
	estimator, err := NewPriorityEstimator([]models.Domain{models.DomainTransport, models.DomainCore, models.DomainRAN})
	if err != nil {
		t.Fatalf("estimator: %v", err)
	}
	got, _ := estimator.Estimate(context.Background(), []models.Event{
		{Timestamp: 1000, Domain: models.DomainRAN, NodeID: "Cell-1", Severity: models.SeverityMinor},
		{Timestamp: 1000, Domain: models.DomainTransport, NodeID: "Link-1", Severity: models.SeverityMinor},
	})
	if got.NodeID != "Link-1" {
		t.Fatalf("expected transport first, got %+v", got)
	}
}

func TestPriorityEstimatorRejectsDuplicatesAndEmpty(t *testing.T) {
	if _, err := NewPriorityEstimator([]models.Domain{models.DomainRAN, models.DomainRAN}); err == nil {
		t.Fatalf("expected duplicate domain error")
	}
	estimator, _ := NewPriorityEstimator(nil)
	if _, err := estimator.Estimate(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty members")
	}
}

func TestFallbackEstimator(t *testing.T) {
	failing := EstimatorFunc(func(context.Context, []models.Event) (*models.RootCause, error) {
		return nil, errors.New("remote down")
	})
	local, _ := NewPriorityEstimator(nil)
	members := []models.Event{
		{Timestamp: 1000, Domain: models.DomainCore, NodeID: "Core-1", Severity: models.SeverityMajor},
	}

	rc, err := FallbackEstimator{Primary: failing, Secondary: local}.Estimate(context.Background(), members)
	if err != nil || rc.NodeID != "Core-1" {
		t.Fatalf("expected secondary result, got %+v, %v", rc, err)
	}
	if _, err := (FallbackEstimator{Primary: failing}).Estimate(context.Background(), members); err == nil {
		t.Fatalf("expected primary error without secondary")
	}
}
