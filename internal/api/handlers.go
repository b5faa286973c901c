package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-alarmcorr/internal/engine"
	"github.com/miradorstack/mirador-alarmcorr/internal/ingest"
	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
)

// IncidentView is the wire shape of an incident with its derived fields.
type IncidentView struct {
	models.Incident
	Correlated bool   `json:"correlated"`
	Critical   bool   `json:"is_critical"`
	LastSeen   int64  `json:"last_seen"`
	Summary    string `json:"summary"`
}

// DecisionView is the wire shape of a correlation decision.
type DecisionView struct {
	Event       string   `json:"event"`
	IncidentIDs []string `json:"incident_ids"`
	Opened      bool     `json:"opened"`
	Duplicate   bool     `json:"duplicate"`
	Confidence  float64  `json:"confidence"`
}

// NewIncidentView adds the derived read fields to inc.
func NewIncidentView(inc models.Incident) IncidentView {
	return IncidentView{
		Incident:   inc,
		Correlated: inc.Correlated(),
		Critical:   inc.Critical(),
		LastSeen:   inc.LastSeen(),
		Summary:    inc.Summary(),
	}
}

// NewDecisionView converts an engine decision.
func NewDecisionView(d engine.Decision) DecisionView {
	ids := d.IncidentIDs
	if ids == nil {
		ids = []string{}
	}
	return DecisionView{
		Event:       d.Event.String(),
		IncidentIDs: ids,
		Opened:      d.Opened,
		Duplicate:   d.Duplicate,
		Confidence:  d.Confidence,
	}
}

// EventFromStruct decodes a canonical event carried in a Struct.
func EventFromStruct(req *structpb.Struct) (models.Event, error) {
	if req == nil {
		return models.Event{}, utils.NewAppError(utils.KindInvalidEvent, "api", "request is nil", nil)
	}
	data, err := req.MarshalJSON()
	if err != nil {
		return models.Event{}, utils.NewAppError(utils.KindInvalidEvent, "api", "encode request", err)
	}
	return ingest.Decode(data)
}

// FilterFromStruct reads the optional "status" and "scope" fields.
func FilterFromStruct(req *structpb.Struct) (models.IncidentFilter, error) {
	var statusValue, scopeValue string
	if req != nil {
		statusValue = req.GetFields()["status"].GetStringValue()
		scopeValue = req.GetFields()["scope"].GetStringValue()
	}
	return models.ParseIncidentFilter(statusValue, scopeValue)
}

// IDFromStruct reads the required "id" field.
func IDFromStruct(req *structpb.Struct) (string, error) {
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return "", errors.New("id is required")
	}
	return id, nil
}

// ToStruct converts any JSON-serialisable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// IncidentsToStruct wraps a list as {"incidents": [...], "count": n}.
func IncidentsToStruct(incidents []models.Incident) (*structpb.Struct, error) {
	views := make([]IncidentView, 0, len(incidents))
	for _, inc := range incidents {
		views = append(views, NewIncidentView(inc))
	}
	return ToStruct(map[string]any{"incidents": views, "count": len(views)})
}

// GRPCError maps an application error onto a gRPC status.
func GRPCError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		return status.Error(codes.Internal, err.Error())
	}
	switch appErr.Kind {
	case utils.KindInvalidEvent:
		return status.Error(codes.InvalidArgument, err.Error())
	case utils.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case utils.KindUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// HTTPStatus maps an application error onto an HTTP status code.
func HTTPStatus(err error) int {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case utils.KindInvalidEvent:
		return http.StatusBadRequest
	case utils.KindNotFound:
		return http.StatusNotFound
	case utils.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
