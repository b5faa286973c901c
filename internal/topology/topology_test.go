package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
)

const sample = `
sameNodeAcrossDomains: false
sites:
  - name: site-1
    nodes:
      - {domain: RAN, node: Cell-1}
      - {domain: core, node: Core-1}
      - {domain: TRANSPORT, node: Link-1}
links:
  - a: {domain: RAN, node: Cell-2}
    b: {domain: TRANSPORT, node: Link-2}
`

func event(domain models.Domain, node string) models.Event {
	return models.Event{Domain: domain, NodeID: node, Timestamp: 1000, Vendor: models.VendorA, AlarmType: "X", Severity: models.SeverityMinor}
}

func TestParseBuildsSymmetricAdjacency(t *testing.T) {
	topo, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if topo.Len() != 4 {
		t.Fatalf("expected 4 links (3 from site, 1 explicit), got %d", topo.Len())
	}

	cell := models.NodeRef{Domain: models.DomainRAN, NodeID: "Cell-1"}
	core := models.NodeRef{Domain: models.DomainCore, NodeID: "Core-1"}
	if !topo.Adjacent(cell, core) || !topo.Adjacent(core, cell) {
		t.Fatalf("expected Cell-1 <-> Core-1")
	}
	if got := topo.neighbors(cell); len(got) != 2 {
		t.Fatalf("expected two neighbours for Cell-1, got %v", got)
	}
}

func TestAffinity(t *testing.T) {
	topo, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cases := []struct {
		name string
		a, b models.Event
		want bool
	}{
		{"same domain same node", event(models.DomainRAN, "Cell-1"), event(models.DomainRAN, "Cell-1"), true},
		{"same domain other node", event(models.DomainRAN, "Cell-1"), event(models.DomainRAN, "Cell-2"), false},
		{"adjacent cross domain", event(models.DomainRAN, "Cell-1"), event(models.DomainCore, "Core-1"), true},
		{"explicit link", event(models.DomainTransport, "Link-2"), event(models.DomainRAN, "Cell-2"), true},
		{"unlinked cross domain", event(models.DomainRAN, "Cell-2"), event(models.DomainCore, "Core-1"), false},
		{"shared id disabled", event(models.DomainRAN, "X-1"), event(models.DomainCore, "X-1"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := topo.Affine(tc.a, tc.b); got != tc.want {
				t.Fatalf("Affine = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSharedNodeIDDefaultsOn(t *testing.T) {
	topo, err := Parse([]byte("sites: []\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !topo.Affine(event(models.DomainRAN, "Node-7"), event(models.DomainTransport, "Node-7")) {
		t.Fatalf("expected shared node id to correlate across domains by default")
	}
}

func TestParseRejectsUnknownDomain(t *testing.T) {
	_, err := Parse([]byte("links:\n  - a: {domain: WIFI, node: ap-1}\n    b: {domain: RAN, node: Cell-1}\n"))
	if err == nil {
		t.Fatalf("expected error for unknown domain")
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	topo, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topo.Len() != 0 {
		t.Fatalf("expected empty topology")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	topo, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if topo.Len() != 4 {
		t.Fatalf("expected 4 links, got %d", topo.Len())
	}
}
