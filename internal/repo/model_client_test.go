package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
	"github.com/miradorstack/mirador-alarmcorr/internal/utils"
)

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func sampleMembers() []models.Event {
	return []models.Event{
		{Timestamp: 1000, Vendor: models.VendorA, Domain: models.DomainRAN, NodeID: "Cell-1", AlarmType: "LINK_DOWN", Severity: models.SeverityMajor},
		{Timestamp: 1005, Vendor: models.VendorB, Domain: models.DomainCore, NodeID: "Core-1", AlarmType: "CPU_HIGH", Severity: models.SeverityCritical},
	}
}

func TestScoreCachesByMemberSet(t *testing.T) {
	hits := 0
	client := NewModelClient(ModelClientOptions{BaseURL: "https://model.example.com/api", Cache: newStubCache(), CacheTTL: time.Minute})
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/api/v1/score" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		var body modelRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Members) != 2 {
			t.Fatalf("expected 2 members, got %d", len(body.Members))
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"confidence": 0.82}), nil
	}))

	ctx := context.Background()
	members := sampleMembers()
	score, err := client.Score(ctx, members)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.82 || hits != 1 {
		t.Fatalf("unexpected score %v after %d requests", score, hits)
	}

	reordered := []models.Event{members[1], members[0]}
	cached, err := client.Score(ctx, reordered)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}
	if cached != 0.82 {
		t.Fatalf("unexpected cached score %v", cached)
	}
}

func TestEstimateParsesRootCause(t *testing.T) {
	client := NewModelClient(ModelClientOptions{BaseURL: "https://model.example.com"})
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/root-cause" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"root_cause": map[string]any{"domain": "CORE", "node_id": "Core-1"},
		}), nil
	}))

	rc, err := client.Estimate(context.Background(), sampleMembers())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.Domain != models.DomainCore || rc.NodeID != "Core-1" {
		t.Fatalf("unexpected root cause %+v", rc)
	}
}

func TestModelErrorsAreUnavailable(t *testing.T) {
	client := NewModelClient(ModelClientOptions{BaseURL: "https://model.example.com"})
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusServiceUnavailable, map[string]any{}), nil
	}))

	_, err := client.Score(context.Background(), sampleMembers())
	if !utils.IsKind(err, utils.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestMissingConfidenceIsAnError(t *testing.T) {
	client := NewModelClient(ModelClientOptions{BaseURL: "https://model.example.com"})
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{"score": 1}), nil
	}))
	if _, err := client.Score(context.Background(), sampleMembers()); err == nil {
		t.Fatalf("expected error for response without confidence")
	}
}

func TestUnconfiguredClientFailsFast(t *testing.T) {
	client := NewModelClient(ModelClientOptions{})
	if _, err := client.Score(context.Background(), sampleMembers()); !utils.IsKind(err, utils.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestFingerprintIgnoresOrder(t *testing.T) {
	members := sampleMembers()
	a := Fingerprint(members)
	b := Fingerprint([]models.Event{members[1], members[0]})
	if a != b {
		t.Fatalf("fingerprint depends on order")
	}
	if a == Fingerprint(members[:1]) {
		t.Fatalf("fingerprint ignores membership")
	}
}
