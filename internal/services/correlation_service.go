package services

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-alarmcorr/internal/api"
	"github.com/miradorstack/mirador-alarmcorr/internal/engine"
	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/store"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
)

// EventIngestor queues validated events and returns their correlation decision.
type EventIngestor interface {
	Ingest(ctx context.Context, ev models.Event) (engine.Decision, error)
	Pending() map[models.Domain]int
}

// IncidentReader is the read side of the incident store.
type IncidentReader interface {
	List(filter models.IncidentFilter) []models.Incident
	Get(id string) (models.Incident, error)
	Stats() store.Stats
}

// WindowSizer reports the temporal window's size, span and watermark.
type WindowSizer interface {
	Len() int
	WindowSeconds() int64
	Watermark() (int64, bool)
}

// CorrelationService backs both the gRPC and HTTP surfaces.
type CorrelationService struct {
	logger        *slog.Logger
	ingestor      EventIngestor
	incidents     IncidentReader
	window        WindowSizer
	submitTimeout time.Duration
	latencies     *utils.LatencyTracker
}

// NewCorrelationService constructs the service facade.
func NewCorrelationService(logger *slog.Logger, ingestor EventIngestor, incidents IncidentReader, window WindowSizer, submitTimeout time.Duration) *CorrelationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorrelationService{
		logger:        logger,
		ingestor:      ingestor,
		incidents:     incidents,
		window:        window,
		submitTimeout: submitTimeout,
		latencies:     utils.NewLatencyTracker(1024),
	}
}

// Ingest submits one validated event and waits for its decision, bounded by the
// configured submit timeout.
func (s *CorrelationService) Ingest(ctx context.Context, ev models.Event) (engine.Decision, error) {
	if s.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.submitTimeout)
		defer cancel()
	}

	start := time.Now()
	decision, err := s.ingestor.Ingest(ctx, ev)
	if err != nil {
		return decision, err
	}
	s.latencies.Observe(time.Since(start))
	if count := s.latencies.Count(); count >= 100 && count%100 == 0 {
		s.logger.Info("ingest latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return decision, nil
}

// Incidents lists incidents matching filter, newest first.
func (s *CorrelationService) Incidents(filter models.IncidentFilter) []models.Incident {
	return s.incidents.List(filter)
}

// Incident returns one incident by id.
func (s *CorrelationService) Incident(id string) (models.Incident, error) {
	return s.incidents.Get(id)
}

// Stats reports store, window and queue sizes.
func (s *CorrelationService) Stats() api.Stats {
	out := api.Stats{Stats: s.incidents.Stats(), IngestP95Seconds: s.LatencyP95().Seconds()}
	if s.window != nil {
		out.WindowEvents = s.window.Len()
		out.WindowSeconds = s.window.WindowSeconds()
		if wm, ok := s.window.Watermark(); ok {
			out.Watermark = &wm
		}
	}
	if s.ingestor != nil {
		out.Pending = s.ingestor.Pending()
	}
	return out
}

// IngestEvent implements the gRPC ingest call.
func (s *CorrelationService) IngestEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	ev, err := api.EventFromStruct(req)
	if err != nil {
		s.logger.Warn("rejected event", slog.Any("error", err))
		return nil, api.GRPCError(err)
	}
	decision, err := s.Ingest(ctx, ev)
	if err != nil {
		return nil, api.GRPCError(err)
	}
	resp, err := api.ToStruct(api.NewDecisionView(decision))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// ListIncidents implements the gRPC list call.
func (s *CorrelationService) ListIncidents(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filter, err := api.FilterFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := api.IncidentsToStruct(s.Incidents(filter))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// GetIncident implements the gRPC get call.
func (s *CorrelationService) GetIncident(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := api.IDFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	inc, err := s.Incident(id)
	if err != nil {
		return nil, api.GRPCError(err)
	}
	resp, err := api.ToStruct(api.NewIncidentView(inc))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// LatencyP95 returns the current p95 ingest latency.
func (s *CorrelationService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
