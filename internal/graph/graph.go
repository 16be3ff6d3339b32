package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"opsmemory/internal/logger"
	"opsmemory/pkg/models"
)

const (
	defaultMaxPathHops = 6
	maxPathsPerPair    = 5
)

// Graph is an in-memory typed property graph. Nodes are never deleted.
// Traversals treat edges as undirected; authority scoring uses direction.
type Graph struct {
	mu sync.RWMutex

	nodes map[string]*Node
	order []string

	rels   []Relationship
	relIdx map[string]int
	out    map[string][]int
	in     map[string][]int

	// undirected neighbor lists in insertion order
	adj    map[string][]string
	adjSet map[string]map[string]struct{}

	maxPathHops int
	now         func() time.Time
}

// Option customizes a Graph.
type Option func(*Graph)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// WithMaxPathHops bounds attack path search depth.
func WithMaxPathHops(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxPathHops = n
		}
	}
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:       make(map[string]*Node),
		relIdx:      make(map[string]int),
		out:         make(map[string][]int),
		in:          make(map[string][]int),
		adj:         make(map[string][]string),
		adjSet:      make(map[string]map[string]struct{}),
		maxPathHops: defaultMaxPathHops,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode inserts a node or replaces the properties and labels of an
// existing one. An empty id gets a generated one.
func (g *Graph) AddNode(n Node) (string, error) {
	if !n.Type.Valid() {
		return "", fmt.Errorf("add node %q: %w: %s", n.ID, ErrUnknownNodeType, n.Type)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if existing, ok := g.nodes[n.ID]; ok {
		existing.Type = n.Type
		existing.Properties = n.Properties
		existing.Labels = n.Labels
		existing.UpdatedAt = now
		return n.ID, nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	logger.Debugf("graph: added node %s (%s)", n.ID, n.Type)
	return n.ID, nil
}

// AddRelationship inserts an edge between two existing nodes, or replaces
// the edge already stored under the same id. Symmetric types are stored as
// two directed entries.
func (g *Graph) AddRelationship(r Relationship) error {
	if !r.Type.Valid() {
		return fmt.Errorf("add relationship %s->%s: %w: %s", r.Source, r.Target, ErrUnknownRelationshipType, r.Type)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{r.Source, r.Target} {
		if _, ok := g.nodes[id]; !ok {
			return fmt.Errorf("add relationship %s->%s: %w: %s", r.Source, r.Target, ErrNodeNotFound, id)
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = g.now()
	}
	r.Strength = clamp01(r.Strength)

	g.insertEdge(r)
	if r.Type.Symmetric() {
		rev := r
		rev.ID = r.ID + "_rev"
		rev.Source, rev.Target = r.Target, r.Source
		g.insertEdge(rev)
	}
	logger.Debugf("graph: added relationship %s -[%s]-> %s", r.Source, r.Type, r.Target)
	return nil
}

func (g *Graph) insertEdge(r Relationship) {
	if idx, ok := g.relIdx[r.ID]; ok {
		old := g.rels[idx]
		r.CreatedAt = old.CreatedAt
		g.rels[idx] = r
		if old.Source != r.Source || old.Target != r.Target {
			g.out[old.Source] = without(g.out[old.Source], idx)
			g.in[old.Target] = without(g.in[old.Target], idx)
			g.out[r.Source] = append(g.out[r.Source], idx)
			g.in[r.Target] = append(g.in[r.Target], idx)
			g.link(r.Source, r.Target)
			g.link(r.Target, r.Source)
		}
		return
	}
	idx := len(g.rels)
	g.relIdx[r.ID] = idx
	g.rels = append(g.rels, r)
	g.out[r.Source] = append(g.out[r.Source], idx)
	g.in[r.Target] = append(g.in[r.Target], idx)
	g.link(r.Source, r.Target)
	g.link(r.Target, r.Source)
}

func without(idxs []int, idx int) []int {
	out := idxs[:0]
	for _, i := range idxs {
		if i != idx {
			out = append(out, i)
		}
	}
	return out
}

func (g *Graph) link(a, b string) {
	set := g.adjSet[a]
	if set == nil {
		set = make(map[string]struct{})
		g.adjSet[a] = set
	}
	if _, ok := set[b]; ok {
		return
	}
	set[b] = struct{}{}
	g.adj[a] = append(g.adj[a], b)
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Relationships returns the stored entries leaving id.
func (g *Graph) Relationships(id string) []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Relationship, 0, len(g.out[id]))
	for _, idx := range g.out[id] {
		out = append(out, g.rels[idx])
	}
	return out
}

// LinkEvent adds a node for an operational event and an affects edge to
// the device it names, or to its site when no device is given. Linking the
// same event id again replaces both.
func (g *Graph) LinkEvent(ev models.Event) (string, error) {
	target := SiteID(ev.Unit, ev.Site)
	if ev.Device != "" {
		target = DeviceID(ev.Unit, ev.Site, ev.Device)
	}
	if _, ok := g.Node(target); !ok {
		return "", fmt.Errorf("link event %s: %w: %s", ev.ID, ErrNodeNotFound, target)
	}

	props := map[string]any{
		"event_type":  string(ev.Type),
		"severity":    string(ev.Severity),
		"description": ev.Description,
		"unit":        strings.ToUpper(ev.Unit),
		"site":        ev.Site,
	}
	if v := ev.Meta("attack_type"); v != "" {
		props["attack_type"] = v
	}
	id, err := g.AddNode(Node{
		ID:         "event_" + ev.ID,
		Type:       eventNodeType(ev.Type),
		Properties: props,
		Labels:     []string{strings.ToUpper(ev.Unit), string(ev.Type)},
		CreatedAt:  ev.Timestamp,
	})
	if err != nil {
		return "", err
	}
	err = g.AddRelationship(Relationship{
		ID:       "rel_" + id,
		Source:   id,
		Target:   target,
		Type:     RelAffects,
		Strength: float64(ev.Severity.Weight()) / 4,
	})
	if err != nil {
		return "", err
	}
	if ev.Type.IsSecurity() {
		g.markSecurityRelevant(target)
	}
	return id, nil
}

func (g *Graph) markSecurityRelevant(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.nodes[id]
	props := make(map[string]any, len(n.Properties)+1)
	for k, v := range n.Properties {
		props[k] = v
	}
	props["security_relevant"] = true
	n.Properties = props
}

func eventNodeType(t models.EventType) NodeType {
	switch {
	case t.IsSecurity(), t == models.EventPolicyViolation:
		return NodeSecurityEvent
	case t == models.EventConfigurationChange:
		return NodeConfiguration
	default:
		return NodePerformanceEvent
	}
}

// Stats counts nodes and stored relationship entries.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Stats{
		Nodes:               len(g.nodes),
		Relationships:       len(g.rels),
		NodesByType:         make(map[NodeType]int),
		RelationshipsByType: make(map[RelationshipType]int),
	}
	for _, n := range g.nodes {
		s.NodesByType[n.Type]++
	}
	for _, r := range g.rels {
		s.RelationshipsByType[r.Type]++
	}
	return s
}

// isCritical reports nodes flagged critical or firewall devices.
func isCritical(n *Node) bool {
	if n == nil {
		return false
	}
	if v, ok := n.Properties["critical"].(bool); ok && v {
		return true
	}
	return n.Type == NodeDevice && strings.Contains(fmt.Sprint(n.Properties["device_name"]), "FortiGate")
}

func isSecurityRelevant(n *Node) bool {
	v, ok := n.Properties["security_relevant"].(bool)
	return ok && v
}

// edgeBetween returns the first stored entry joining a and b in either
// direction.
func (g *Graph) edgeBetween(a, b string) (Relationship, bool) {
	for _, idx := range g.out[a] {
		if g.rels[idx].Target == b {
			return g.rels[idx], true
		}
	}
	for _, idx := range g.out[b] {
		if g.rels[idx].Target == a {
			return g.rels[idx], true
		}
	}
	return Relationship{}, false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
