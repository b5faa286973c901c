package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
)

// rawEvent mirrors the canonical wire schema before validation.
type rawEvent struct {
	Timestamp json.Number        `json:"timestamp"`
	Vendor    string             `json:"vendor"`
	Domain    string             `json:"domain"`
	NodeID    string             `json:"node_id"`
	AlarmType string             `json:"alarm_type"`
	Severity  string             `json:"severity"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Decode parses one canonical JSON event and validates it.
func Decode(data []byte) (models.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw rawEvent
	if err := dec.Decode(&raw); err != nil {
		return models.Event{}, invalid("malformed event", err)
	}
	return raw.toEvent()
}

// DecodeBatch accepts either a single event object or an array of events.
func DecodeBatch(data []byte) ([]models.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, invalid("empty body", nil)
	}
	if trimmed[0] != '[' {
		ev, err := Decode(trimmed)
		if err != nil {
			return nil, err
		}
		return []models.Event{ev}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, invalid("malformed event batch", err)
	}
	events := make([]models.Event, 0, len(items))
	for i, item := range items {
		ev, err := Decode(item)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r rawEvent) toEvent() (models.Event, error) {
	if r.Timestamp == "" {
		return models.Event{}, invalid("timestamp is required", nil)
	}
	ts, err := r.Timestamp.Int64()
	if err != nil {
		return models.Event{}, invalid("timestamp must be integer seconds", err)
	}
	vendor, err := models.ParseVendor(r.Vendor)
	if err != nil {
		return models.Event{}, invalid("bad vendor", err)
	}
	domain, err := models.ParseDomain(r.Domain)
	if err != nil {
		return models.Event{}, invalid("bad domain", err)
	}
	severity, err := models.ParseSeverity(r.Severity)
	if err != nil {
		return models.Event{}, invalid("bad severity", err)
	}
	ev := models.Event{
		Timestamp: ts,
		Vendor:    vendor,
		Domain:    domain,
		NodeID:    strings.TrimSpace(r.NodeID),
		AlarmType: strings.TrimSpace(r.AlarmType),
		Severity:  severity,
		Metrics:   r.Metrics,
	}
	if err := Validate(ev); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

// Validate checks a typed event against the canonical schema.
func Validate(ev models.Event) error {
	if ev.Timestamp <= 0 {
		return invalid("timestamp must be positive", nil)
	}
	if !models.ValidTimestamp(ev.Timestamp) {
		return invalid(fmt.Sprintf("timestamp %d is beyond %d", ev.Timestamp, models.MaxTimestamp), nil)
	}
	if v, err := models.ParseVendor(string(ev.Vendor)); err != nil || v != ev.Vendor {
		return invalid(fmt.Sprintf("vendor %q is not canonical", ev.Vendor), err)
	}
	if d, err := models.ParseDomain(string(ev.Domain)); err != nil || d != ev.Domain {
		return invalid(fmt.Sprintf("domain %q is not canonical", ev.Domain), err)
	}
	if s, err := models.ParseSeverity(string(ev.Severity)); err != nil || s != ev.Severity {
		return invalid(fmt.Sprintf("severity %q is not canonical", ev.Severity), err)
	}
	if strings.TrimSpace(ev.NodeID) == "" {
		return invalid("node_id is required", nil)
	}
	if strings.TrimSpace(ev.AlarmType) == "" {
		return invalid("alarm_type is required", nil)
	}
	for name, v := range ev.Metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(fmt.Sprintf("metric %q is not a finite number", name), nil)
		}
	}
	return nil
}

func invalid(msg string, err error) error {
	return utils.NewAppError(utils.KindInvalidEvent, "ingest", msg, err)
}
