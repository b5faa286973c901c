package models

import (
	"fmt"
	"sort"
	"strings"
)

// IncidentStatus is the lifecycle state of an incident. Transitions are open -> closed only.
type IncidentStatus string

const (
	StatusOpen   IncidentStatus = "open"
	StatusClosed IncidentStatus = "closed"
)

// NodeRef names a node inside a domain.
type NodeRef struct {
	Domain Domain `json:"domain" yaml:"domain"`
	NodeID string `json:"node_id" yaml:"node"`
}

func (n NodeRef) String() string {
	return string(n.Domain) + ":" + n.NodeID
}

// RootCause is the estimated originating node of an incident.
type RootCause = NodeRef

// Incident groups one or more correlated events that represent a single fault.
type Incident struct {
	ID         string         `json:"id"`
	OpenedAt   int64          `json:"opened_at"`
	ClosedAt   *int64         `json:"closed_at,omitempty"`
	Members    []Event        `json:"member_events"`
	Domains    []Domain       `json:"domains_involved"`
	Confidence float64        `json:"confidence"`
	RootCause  *RootCause     `json:"root_cause,omitempty"`
	Status     IncidentStatus `json:"status"`
}

// Correlated reports whether the incident spans at least two domains.
func (i Incident) Correlated() bool {
	return len(i.Domains) >= 2
}

// LastSeen is the latest member timestamp.
func (i Incident) LastSeen() int64 {
	var last int64
	for idx, m := range i.Members {
		if idx == 0 || m.Timestamp > last {
			last = m.Timestamp
		}
	}
	return last
}

// Critical reports whether any member carries critical severity.
func (i Incident) Critical() bool {
	for _, m := range i.Members {
		if m.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// HasMember reports whether an event with the given identity is already a member.
func (i Incident) HasMember(key EventKey) bool {
	for _, m := range i.Members {
		if m.Key() == key {
			return true
		}
	}
	return false
}

// Summary renders a short human readable explanation of the incident.
func (i Incident) Summary() string {
	names := make([]string, 0, len(i.Domains))
	for _, d := range i.Domains {
		names = append(names, string(d))
	}
	prefix := ""
	if i.Critical() {
		prefix = "CRITICAL: "
	}
	kind := "single-domain"
	if i.Correlated() {
		kind = "correlated"
	}
	return fmt.Sprintf("%s%d %s events across [%s]", prefix, len(i.Members), kind, strings.Join(names, ", "))
}

// Clone returns a deep copy.
func (i Incident) Clone() Incident {
	out := i
	out.Members = make([]Event, len(i.Members))
	for idx, m := range i.Members {
		out.Members[idx] = m.Clone()
	}
	out.Domains = append([]Domain(nil), i.Domains...)
	if i.ClosedAt != nil {
		closed := *i.ClosedAt
		out.ClosedAt = &closed
	}
	if i.RootCause != nil {
		rc := *i.RootCause
		out.RootCause = &rc
	}
	return out
}

// DomainsOf returns the distinct domains of events in the fixed Domains order,
// followed by any unknown domain sorted by name.
func DomainsOf(events []Event) []Domain {
	seen := make(map[Domain]struct{}, len(Domains))
	for _, e := range events {
		seen[e.Domain] = struct{}{}
	}
	out := make([]Domain, 0, len(seen))
	for _, d := range Domains {
		if _, ok := seen[d]; ok {
			out = append(out, d)
			delete(seen, d)
		}
	}
	rest := make([]Domain, 0, len(seen))
	for d := range seen {
		rest = append(rest, d)
	}
	sort.Slice(rest, func(a, b int) bool { return rest[a] < rest[b] })
	return append(out, rest...)
}

// StatusFilter selects incidents by lifecycle state.
type StatusFilter string

const (
	StatusAny        StatusFilter = ""
	StatusOnlyOpen   StatusFilter = "open"
	StatusOnlyClosed StatusFilter = "closed"
)

// Scope selects between every incident and cross-domain ones.
type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeCorrelated Scope = "correlated"
)

// IncidentFilter is the read-path query used by API consumers.
type IncidentFilter struct {
	Status StatusFilter
	Scope  Scope
}

// Match reports whether the incident passes the filter.
func (f IncidentFilter) Match(i Incident) bool {
	switch f.Status {
	case StatusOnlyOpen:
		if i.Status != StatusOpen {
			return false
		}
	case StatusOnlyClosed:
		if i.Status != StatusClosed {
			return false
		}
	}
	if f.Scope == ScopeCorrelated && !i.Correlated() {
		return false
	}
	return true
}

// ParseIncidentFilter builds a filter from query-style strings. Empty values mean "any".
func ParseIncidentFilter(status, scope string) (IncidentFilter, error) {
	var f IncidentFilter
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "any", "all":
		f.Status = StatusAny
	case "open":
		f.Status = StatusOnlyOpen
	case "closed":
		f.Status = StatusOnlyClosed
	default:
		return f, fmt.Errorf("unknown status filter %q", status)
	}
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", "all":
		f.Scope = ScopeAll
	case "correlated":
		f.Scope = ScopeCorrelated
	default:
		return f, fmt.Errorf("unknown scope %q", scope)
	}
	return f, nil
}
