// Package topology describes which nodes in different network domains are related.
package topology

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
)

// Topology is an undirected adjacency between nodes of different domains. It is built
// once at startup and read concurrently afterwards.
type Topology struct {
	adj                   map[models.NodeRef]map[models.NodeRef]struct{}
	sameNodeAcrossDomains bool
}

// File is the YAML root structure of a topology file.
type File struct {
	SameNodeAcrossDomains *bool  `yaml:"sameNodeAcrossDomains"`
	Sites                 []Site `yaml:"sites"`
	Links                 []Link `yaml:"links"`
}

// Site groups nodes that serve the same location; every cross-domain pair inside a site is adjacent.
type Site struct {
	Name  string           `yaml:"name"`
	Nodes []models.NodeRef `yaml:"nodes"`
}

// Link is an explicit adjacency between two nodes.
type Link struct {
	A models.NodeRef `yaml:"a"`
	B models.NodeRef `yaml:"b"`
}

// New returns an empty topology.
func New(sameNodeAcrossDomains bool) *Topology {
	return &Topology{
		adj:                   make(map[models.NodeRef]map[models.NodeRef]struct{}),
		sameNodeAcrossDomains: sameNodeAcrossDomains,
	}
}

// Load reads a topology file. A missing file yields an empty topology so the
// service still correlates same-domain alarms.
func Load(path string, logger *slog.Logger) (*Topology, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		logger.Warn("no topology configured; cross-domain correlation limited to shared node ids")
		return New(true), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("topology file not found", slog.String("path", path))
			return New(true), nil
		}
		return nil, fmt.Errorf("read topology: %w", err)
	}
	topo, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	logger.Info("topology loaded", slog.String("path", path), slog.Int("links", topo.Len()))
	return topo, nil
}

// Parse builds a topology from YAML.
func Parse(data []byte) (*Topology, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	sameNode := true
	if file.SameNodeAcrossDomains != nil {
		sameNode = *file.SameNodeAcrossDomains
	}
	topo := New(sameNode)

	for _, site := range file.Sites {
		nodes := make([]models.NodeRef, 0, len(site.Nodes))
		for _, n := range site.Nodes {
			ref, err := normalise(n)
			if err != nil {
				return nil, fmt.Errorf("site %q: %w", site.Name, err)
			}
			nodes = append(nodes, ref)
		}
		for i := range nodes {
			for j := i + 1; j < len(nodes); j++ {
				if nodes[i].Domain != nodes[j].Domain {
					topo.Link(nodes[i], nodes[j])
				}
			}
		}
	}
	for i, link := range file.Links {
		a, err := normalise(link.A)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
		b, err := normalise(link.B)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
		topo.Link(a, b)
	}
	return topo, nil
}

func normalise(ref models.NodeRef) (models.NodeRef, error) {
	domain, err := models.ParseDomain(string(ref.Domain))
	if err != nil {
		return models.NodeRef{}, err
	}
	if ref.NodeID == "" {
		return models.NodeRef{}, fmt.Errorf("node id required for domain %s", domain)
	}
	return models.NodeRef{Domain: domain, NodeID: ref.NodeID}, nil
}

// Link records a symmetric adjacency. Links inside one domain are ignored: same-domain
// affinity is decided by node identity alone.
func (t *Topology) Link(a, b models.NodeRef) {
	if a.Domain == b.Domain {
		return
	}
	t.add(a, b)
	t.add(b, a)
}

func (t *Topology) add(from, to models.NodeRef) {
	set, ok := t.adj[from]
	if !ok {
		set = make(map[models.NodeRef]struct{})
		t.adj[from] = set
	}
	set[to] = struct{}{}
}

// Adjacent reports whether a and b are linked.
func (t *Topology) Adjacent(a, b models.NodeRef) bool {
	if t == nil {
		return false
	}
	_, ok := t.adj[a][b]
	return ok
}

// Affine decides whether two events may describe the same fault. Same-domain events
// need the same node; cross-domain events need an adjacency, or the same node id when
// sameNodeAcrossDomains is enabled.
func (t *Topology) Affine(a, b models.Event) bool {
	if a.Domain == b.Domain {
		return a.NodeID == b.NodeID
	}
	if t == nil {
		return false
	}
	if t.sameNodeAcrossDomains && a.NodeID == b.NodeID {
		return true
	}
	return t.Adjacent(models.NodeRef{Domain: a.Domain, NodeID: a.NodeID}, models.NodeRef{Domain: b.Domain, NodeID: b.NodeID})
}

// neighbors lists nodes adjacent to ref, sorted for stable output.
func (t *Topology) neighbors(ref models.NodeRef) []models.NodeRef {
	if t == nil {
		return nil
	}
	out := make([]models.NodeRef, 0, len(t.adj[ref]))
	for n := range t.adj[ref] {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

// Len returns the number of undirected links.
func (t *Topology) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, set := range t.adj {
		n += len(set)
	}
	return n / 2
}
