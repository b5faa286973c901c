// Package store owns the authoritative set of incidents and their lifecycle.
package store

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
)

var (
	// ErrIncidentClosed is wrapped when a mutation targets a closed incident.
	ErrIncidentClosed = errors.New("incident closed")
	// ErrUnknownIncident is wrapped when an incident id does not exist.
	ErrUnknownIncident = errors.New("unknown incident")
)

// Enrichment carries the scored fields written together with a membership change.
type Enrichment struct {
	Confidence float64
	RootCause  *models.RootCause
}

// Options configures a Store.
type Options struct {
	// WindowSeconds is how long an incident stays open after its latest member.
	WindowSeconds int
	// MaxClosed bounds how many closed incidents are retained; <= 0 keeps all.
	MaxClosed int
	// NewID generates incident ids; defaults to INC-<uuid>.
	NewID  func() string
	Logger *slog.Logger
}

// Stats summarises the store for health, analytics and metrics endpoints. Vendor and
// domain counts add one per incident that has at least one member from that value.
type Stats struct {
	Open         int                   `json:"open"`
	Closed       int                   `json:"closed"`
	Correlated   int                   `json:"correlated"`
	SingleDomain int                   `json:"single_domain"`
	Events       int                   `json:"events"`
	ByVendor     map[models.Vendor]int `json:"by_vendor"`
	ByDomain     map[models.Domain]int `json:"by_domain"`
}

// Health bands for the open incident count.
const (
	HealthHealthy  = "Healthy"
	HealthWarning  = "Warning"
	HealthCritical = "Critical"
)

// Total is the number of retained incidents.
func (s Stats) Total() int { return s.Open + s.Closed }

// Health grades the open incident count: under 5 is healthy, under 15 a warning.
func (s Stats) Health() string {
	switch {
	case s.Open < 5:
		return HealthHealthy
	case s.Open < 15:
		return HealthWarning
	default:
		return HealthCritical
	}
}

// Store is the exclusive owner of incidents. All methods are safe for concurrent use;
// read methods return deep copies.
type Store struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	window     int64
	maxClosed  int
	newID      func() string
	incidents  map[string]*models.Incident
	lastSeen   map[string]int64
	membership map[models.EventKey][]string
	deadlines  deadlineHeap
	closed     []string
}

// New builds an empty Store.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WindowSeconds < 1 {
		opts.WindowSeconds = 30
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return "INC-" + uuid.NewString() }
	}
	return &Store{
		logger:     opts.Logger,
		window:     int64(opts.WindowSeconds),
		maxClosed:  opts.MaxClosed,
		newID:      opts.NewID,
		incidents:  make(map[string]*models.Incident),
		lastSeen:   make(map[string]int64),
		membership: make(map[models.EventKey][]string),
	}
}

// Create opens a new incident whose sole member is ev.
func (s *Store) Create(ev models.Event, enr Enrichment) models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc := &models.Incident{
		ID:         s.newID(),
		OpenedAt:   ev.Timestamp,
		Members:    []models.Event{ev},
		Domains:    models.DomainsOf([]models.Event{ev}),
		Confidence: enr.Confidence,
		RootCause:  copyRootCause(enr.RootCause),
		Status:     models.StatusOpen,
	}
	s.incidents[inc.ID] = inc
	s.lastSeen[inc.ID] = ev.Timestamp
	s.index(ev.Key(), inc.ID)
	s.deadlines.schedule(inc.ID, ev.Timestamp+s.window)
	return inc.Clone()
}

// AppendMember adds ev to an open incident and applies the enrichment. Appending an
// event that is already a member changes nothing. Targeting a closed or unknown
// incident is an invariant violation.
func (s *Store) AppendMember(id string, ev models.Event, enr Enrichment) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, s.violation("store.append", id, ErrUnknownIncident)
	}
	if inc.Status != models.StatusOpen {
		return models.Incident{}, s.violation("store.append", id, ErrIncidentClosed)
	}
	if inc.HasMember(ev.Key()) {
		return inc.Clone(), nil
	}

	inc.Members = append(inc.Members, ev)
	inc.Domains = models.DomainsOf(inc.Members)
	inc.Confidence = enr.Confidence
	inc.RootCause = copyRootCause(enr.RootCause)
	s.index(ev.Key(), id)

	if ev.Timestamp > s.lastSeen[id] {
		s.lastSeen[id] = ev.Timestamp
		s.deadlines.schedule(id, ev.Timestamp+s.window)
	}
	return inc.Clone(), nil
}

// Close transitions an incident to closed. Closing an already closed incident is a no-op.
func (s *Store) Close(id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return utils.NewAppError(utils.KindNotFound, "store.close", id, ErrUnknownIncident)
	}
	s.closeLocked(inc, at)
	return nil
}

// CloseExpired closes every open incident whose latest member is more than the window
// older than now, and returns the closed incidents.
func (s *Store) CloseExpired(now int64) []models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Incident
	for _, d := range s.deadlines.due(now) {
		inc, ok := s.incidents[d.id]
		if !ok || inc.Status != models.StatusOpen {
			continue
		}
		if s.lastSeen[d.id]+s.window != d.at {
			continue
		}
		s.closeLocked(inc, now)
		out = append(out, inc.Clone())
	}
	return out
}

func (s *Store) closeLocked(inc *models.Incident, at int64) {
	if inc.Status == models.StatusClosed {
		return
	}
	inc.Status = models.StatusClosed
	closedAt := at
	inc.ClosedAt = &closedAt
	for _, m := range inc.Members {
		s.unindex(m.Key(), inc.ID)
	}
	s.closed = append(s.closed, inc.ID)
	s.enforceRetention()
}

func (s *Store) enforceRetention() {
	if s.maxClosed <= 0 {
		return
	}
	for len(s.closed) > s.maxClosed {
		oldest := s.closed[0]
		s.closed = s.closed[1:]
		delete(s.incidents, oldest)
		delete(s.lastSeen, oldest)
	}
}

// Get returns a copy of the incident with the given id.
func (s *Store) Get(id string) (models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, utils.NewAppError(utils.KindNotFound, "store.get", id, ErrUnknownIncident)
	}
	return inc.Clone(), nil
}

// List returns incidents matching filter, most recently active first.
func (s *Store) List(filter models.IncidentFilter) []models.Incident {
	s.mu.RLock()
	out := make([]models.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		if filter.Match(*inc) {
			out = append(out, inc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].LastSeen(), out[j].LastSeen()
		if li != lj {
			return li > lj
		}
		if out[i].OpenedAt != out[j].OpenedAt {
			return out[i].OpenedAt > out[j].OpenedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OpenContaining returns the open incidents that hold any of the given events.
func (s *Store) OpenContaining(keys []models.EventKey) []models.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []models.Incident
	for _, key := range keys {
		for _, id := range s.membership[key] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, s.incidents[id].Clone())
		}
	}
	return out
}

// Stats counts retained incidents by state, scope, vendor and domain.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		ByVendor: make(map[models.Vendor]int),
		ByDomain: make(map[models.Domain]int),
	}
	events := make(map[models.EventKey]struct{})
	for _, inc := range s.incidents {
		if inc.Status == models.StatusOpen {
			st.Open++
		} else {
			st.Closed++
		}
		if inc.Correlated() {
			st.Correlated++
		} else {
			st.SingleDomain++
		}
		vendors := make(map[models.Vendor]struct{}, 3)
		for _, m := range inc.Members {
			events[m.Key()] = struct{}{}
			vendors[m.Vendor] = struct{}{}
		}
		for v := range vendors {
			st.ByVendor[v]++
		}
		for _, d := range models.DomainsOf(inc.Members) {
			st.ByDomain[d]++
		}
	}
	st.Events = len(events)
	return st
}

func (s *Store) index(key models.EventKey, id string) {
	s.membership[key] = append(s.membership[key], id)
}

func (s *Store) unindex(key models.EventKey, id string) {
	ids := s.membership[key]
	for i, existing := range ids {
		if existing == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.membership, key)
		return
	}
	s.membership[key] = ids
}

func (s *Store) violation(op, id string, err error) error {
	s.logger.Error("incident store invariant violated", slog.String("op", op), slog.String("incident_id", id), slog.Any("error", err))
	return utils.NewAppError(utils.KindInvariantViolation, op, id, err)
}

func copyRootCause(rc *models.RootCause) *models.RootCause {
	if rc == nil {
		return nil
	}
	out := *rc
	return &out
}
