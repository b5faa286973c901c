package models

import (
	"fmt"
	"strings"
)

// MaxTimestamp is the latest accepted event time, 9999-12-31T23:59:59Z in unix seconds.
const MaxTimestamp int64 = 253402300799

// ValidTimestamp reports whether ts is a positive unix second no later than MaxTimestamp.
func ValidTimestamp(ts int64) bool {
	return ts > 0 && ts <= MaxTimestamp
}

// Vendor identifies the equipment vendor that raised an alarm.
type Vendor string

const (
	VendorA Vendor = "VendorA"
	VendorB Vendor = "VendorB"
	VendorC Vendor = "VendorC"
)

// ParseVendor accepts the canonical names as well as the bare A/B/C letters.
func ParseVendor(value string) (Vendor, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "VENDORA", "A":
		return VendorA, nil
	case "VENDORB", "B":
		return VendorB, nil
	case "VENDORC", "C":
		return VendorC, nil
	default:
		return "", fmt.Errorf("unknown vendor %q", value)
	}
}

// Domain is the network layer an alarm belongs to.
type Domain string

const (
	DomainRAN       Domain = "RAN"
	DomainCore      Domain = "CORE"
	DomainTransport Domain = "TRANSPORT"
)

// Domains lists every known domain in default root-cause priority order.
var Domains = []Domain{DomainRAN, DomainCore, DomainTransport}

// ParseDomain is case-insensitive.
func ParseDomain(value string) (Domain, error) {
	switch Domain(strings.ToUpper(strings.TrimSpace(value))) {
	case DomainRAN:
		return DomainRAN, nil
	case DomainCore:
		return DomainCore, nil
	case DomainTransport:
		return DomainTransport, nil
	default:
		return "", fmt.Errorf("unknown domain %q", value)
	}
}

// Severity captures alarm impact. Rank orders severities from least to most severe.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// ParseSeverity is case-insensitive.
func ParseSeverity(value string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityMinor:
		return SeverityMinor, nil
	case SeverityMajor:
		return SeverityMajor, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", value)
	}
}

// Rank returns 1..3 for known severities and 0 otherwise.
func (s Severity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Event is a canonical, vendor-neutral alarm. Events are treated as immutable values.
type Event struct {
	Timestamp int64              `json:"timestamp"`
	Vendor    Vendor             `json:"vendor"`
	Domain    Domain             `json:"domain"`
	NodeID    string             `json:"node_id"`
	AlarmType string             `json:"alarm_type"`
	Severity  Severity           `json:"severity"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// EventKey is the identity of an event.
type EventKey struct {
	Vendor    Vendor
	NodeID    string
	Timestamp int64
	AlarmType string
}

// Key returns the identity of the event.
func (e Event) Key() EventKey {
	return EventKey{Vendor: e.Vendor, NodeID: e.NodeID, Timestamp: e.Timestamp, AlarmType: e.AlarmType}
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%s", k.Vendor, k.NodeID, k.Timestamp, k.AlarmType)
}

// Clone copies the metrics map so the returned event shares no state with e.
func (e Event) Clone() Event {
	if e.Metrics != nil {
		metrics := make(map[string]float64, len(e.Metrics))
		for k, v := range e.Metrics {
			metrics[k] = v
		}
		e.Metrics = metrics
	}
	return e
}
