package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmemory/config"
	"opsmemory/pkg/models"
)

var t0 = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func newTestGraph() *Graph {
	return New(WithClock(func() time.Time { return t0 }))
}

func bootstrapped(t *testing.T) *Graph {
	t.Helper()
	g := newTestGraph()
	require.NoError(t, g.Bootstrap(config.GraphConfig{}))
	return g
}

// chain builds device -> site -> unit joined by belongs_to.
func chain(t *testing.T) *Graph {
	t.Helper()
	g := newTestGraph()
	for _, n := range []Node{
		{ID: "unit", Type: NodeUnit},
		{ID: "site", Type: NodeSite},
		{ID: "dev", Type: NodeDevice, Properties: map[string]any{"device_name": "Switch-01"}},
	} {
		_, err := g.AddNode(n)
		require.NoError(t, err)
	}
	require.NoError(t, g.AddRelationship(Relationship{Source: "dev", Target: "site", Type: RelBelongsTo, Strength: 1}))
	require.NoError(t, g.AddRelationship(Relationship{Source: "site", Target: "unit", Type: RelBelongsTo, Strength: 1}))
	return g
}

func TestAddRelationshipRequiresEndpoints(t *testing.T) {
	g := newTestGraph()
	_, err := g.AddNode(Node{ID: "a", Type: NodeDevice})
	require.NoError(t, err)

	err = g.AddRelationship(Relationship{Source: "a", Target: "missing", Type: RelConnectsTo, Strength: 0.5})
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Zero(t, g.Stats().Relationships)
	assert.Empty(t, g.Relationships("a"))
}

func TestAddNodeAndRelationshipValidateTypes(t *testing.T) {
	g := newTestGraph()
	_, err := g.AddNode(Node{ID: "x", Type: NodeType("router")})
	assert.ErrorIs(t, err, ErrUnknownNodeType)

	id, err := g.AddNode(Node{Type: NodeUser})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = g.AddNode(Node{ID: "y", Type: NodeUser})
	require.NoError(t, err)
	err = g.AddRelationship(Relationship{Source: id, Target: "y", Type: RelationshipType("knows")})
	assert.ErrorIs(t, err, ErrUnknownRelationshipType)
}

func TestSymmetricRelationshipStoredTwice(t *testing.T) {
	g := newTestGraph()
	for _, id := range []string{"a", "b"} {
		_, err := g.AddNode(Node{ID: id, Type: NodeDevice})
		require.NoError(t, err)
	}
	require.NoError(t, g.AddRelationship(Relationship{ID: "r", Source: "a", Target: "b", Type: RelSimilarTo, Strength: 2}))

	s := g.Stats()
	assert.Equal(t, 2, s.Relationships)
	assert.Equal(t, 2, s.RelationshipsByType[RelSimilarTo])
	back := g.Relationships("b")
	require.Len(t, back, 1)
	assert.Equal(t, "a", back[0].Target)
	assert.Equal(t, "r_rev", back[0].ID)
	assert.Equal(t, 1.0, back[0].Strength)
}

func TestBootstrapTopology(t *testing.T) {
	g := bootstrapped(t)
	s := g.Stats()
	assert.Equal(t, 39, s.Nodes)
	assert.Equal(t, 36, s.Relationships)
	assert.Equal(t, 3, s.NodesByType[NodeUnit])
	assert.Equal(t, 9, s.NodesByType[NodeSite])
	assert.Equal(t, 27, s.NodesByType[NodeDevice])

	n, ok := g.Node(DeviceID("bww", "155", "FortiGate-01"))
	require.True(t, ok)
	assert.Equal(t, "FortiGate", n.Properties["device_type"])
	assert.Equal(t, t0, n.CreatedAt)
}

func TestEntityNodeID(t *testing.T) {
	assert.Equal(t, "unit_BWW", EntityNodeID("bww"))
	assert.Equal(t, "site_BWW_155", EntityNodeID("BWW_155"))
	assert.Equal(t, "device_BWW_155_AP-01", EntityNodeID("BWW_155_AP-01"))
	assert.Equal(t, "site_SONIC_789", EntityNodeID("site_SONIC_789"))
}

func TestImpactPropagationAlongChain(t *testing.T) {
	g := chain(t)

	res, err := g.AnalyzeImpactPropagation("dev", 2)
	require.NoError(t, err)
	require.Len(t, res.Affected, 2)
	assert.Equal(t, "site", res.Affected[0].ID)
	assert.Equal(t, 1, res.Affected[0].Hop)
	assert.InDelta(t, 0.3, res.Affected[0].Risk, 1e-9)
	assert.Equal(t, "unit", res.Affected[1].ID)
	assert.Equal(t, 2, res.Affected[1].Hop)
	assert.InDelta(t, 0.4/3, res.Affected[1].Risk, 1e-9)
	assert.Equal(t, 2, res.MaxDistance)
	assert.Equal(t, 1, res.SitesAffected)
	assert.Equal(t, "Isolate dev immediately to prevent further propagation", res.Recommendations[0])

	fromSite, err := g.AnalyzeImpactPropagation("site", 1)
	require.NoError(t, err)
	require.Len(t, fromSite.Affected, 2)
	assert.Equal(t, "dev", fromSite.Affected[0].ID)
	assert.Greater(t, fromSite.Affected[0].Risk, res.Affected[0].Risk)

	_, err = g.AnalyzeImpactPropagation("nope", 0)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestImpactPropagationCriticalMultiplier(t *testing.T) {
	g := bootstrapped(t)
	res, err := g.AnalyzeImpactPropagation(SiteID("BWW", "155"), 1)
	require.NoError(t, err)
	require.Len(t, res.Affected, 4)
	assert.Equal(t, DeviceID("BWW", "155", "FortiGate-01"), res.Affected[0].ID)
	assert.InDelta(t, 0.48, res.Affected[0].Risk, 1e-9)
	assert.Equal(t, 3, res.DevicesAffected)
}

func TestFindSimilarEntities(t *testing.T) {
	g := bootstrapped(t)
	got, err := g.FindSimilarEntities(DeviceID("BWW", "155", "FortiGate-01"), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, DeviceID("BWW", "234", "FortiGate-01"), got[0].ID)
	assert.InDelta(t, 0.875, got[0].Score, 1e-9)
	assert.Equal(t, DeviceID("BWW", "789", "FortiGate-01"), got[1].ID)

	loose, err := g.FindSimilarEntities(DeviceID("BWW", "155", "FortiGate-01"), 0.6)
	require.NoError(t, err)
	// adds the same-site firewalls of the other units at 0.625
	assert.Len(t, loose, 4)

	_, err = g.FindSimilarEntities("nope", 0)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestAnalyzeAttackPaths(t *testing.T) {
	g := bootstrapped(t)
	src := DeviceID("BWW", "155", "Switch-01")
	dst := DeviceID("BWW", "155", "FortiGate-01")

	got := g.AnalyzeAttackPaths([]string{src}, []string{dst})
	require.Len(t, got, 1)
	assert.Equal(t, [][]string{{src, SiteID("BWW", "155"), dst}}, got[0].Paths)
	assert.Equal(t, 3, got[0].ShortestLength)
	assert.Equal(t, []RelationshipType{RelBelongsTo, RelBelongsTo}, got[0].RelationshipTypes)
	assert.InDelta(t, 0.4/3+0.4/3+0.2, got[0].Risk, 1e-9)

	short := New(WithMaxPathHops(1))
	require.NoError(t, short.Bootstrap(config.GraphConfig{}))
	assert.Empty(t, short.AnalyzeAttackPaths([]string{src}, []string{dst}))
}

func TestAttackPathsDefaultToSecurityRelevantSources(t *testing.T) {
	g := bootstrapped(t)
	_, err := g.LinkEvent(models.Event{
		ID:        "e1",
		Timestamp: t0,
		Type:      models.EventSecurityIncident,
		Unit:      "BWW",
		Site:      "155",
		Device:    "AP-01",
		Severity:  models.SeverityHigh,
	})
	require.NoError(t, err)

	got := g.AnalyzeAttackPaths(nil, nil)
	require.Len(t, got, 3)
	for _, p := range got {
		assert.Equal(t, DeviceID("BWW", "155", "AP-01"), p.Source)
	}
	assert.Equal(t, DeviceID("BWW", "155", "FortiGate-01"), got[0].Target)
	assert.Equal(t, 1, g.Stats().NodesByType[NodeSecurityEvent])
}

func TestLinkEventNeedsKnownTarget(t *testing.T) {
	g := bootstrapped(t)
	_, err := g.LinkEvent(models.Event{ID: "e2", Type: models.EventPerformanceIssue, Unit: "BWW", Site: "999"})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestFindNetworkClusters(t *testing.T) {
	g := bootstrapped(t)

	comps := g.FindNetworkClusters(ClusterConnectedComponents)
	require.Len(t, comps, 3)
	for _, c := range comps {
		assert.Len(t, c.Nodes, 13)
		assert.InDelta(t, 24.0/13/13, c.Score, 1e-9)
		assert.Equal(t, "mixed", c.Type)
		require.Len(t, c.CentralNodes, 3)
		for _, id := range c.CentralNodes {
			n, ok := g.Node(id)
			require.True(t, ok)
			assert.Equal(t, NodeSite, n.Type)
		}
		assert.Empty(t, c.RiskFactors)
	}

	byUnit := g.FindNetworkClusters(ClusterGroupingKey)
	require.Len(t, byUnit, 3)
	assert.Len(t, byUnit[0].Nodes, 12)
	assert.Equal(t, "BWW", byUnit[0].CommonAttributes["unit"])

	assert.Nil(t, g.FindNetworkClusters(ClusterMode("louvain")))
}

func TestClusterRiskFactors(t *testing.T) {
	g := bootstrapped(t)
	_, err := g.AddNode(Node{ID: "wan", Type: NodeNetworkSegment})
	require.NoError(t, err)
	require.NoError(t, g.AddRelationship(Relationship{Source: SiteID("BWW", "155"), Target: "wan", Type: RelConnectsTo, Strength: 0.5}))
	require.NoError(t, g.AddRelationship(Relationship{Source: SiteID("SONIC", "789"), Target: "wan", Type: RelConnectsTo, Strength: 0.5}))
	_, err = g.LinkEvent(models.Event{ID: "e3", Type: models.EventSecurityIncident, Unit: "SONIC", Site: "789", Severity: models.SeverityLow})
	require.NoError(t, err)

	comps := g.FindNetworkClusters(ClusterConnectedComponents)
	require.Len(t, comps, 2)
	var merged ClusterAnalysis
	for _, c := range comps {
		if len(c.Nodes) > 13 {
			merged = c
		}
	}
	require.Len(t, merged.Nodes, 28)
	assert.Contains(t, merged.RiskFactors, "1 security events in cluster")
	assert.Contains(t, merged.RiskFactors, "Cross-unit cluster: BWW, SONIC")
}

func TestEntityInfluenceScore(t *testing.T) {
	g := chain(t)

	mid, err := g.EntityInfluenceScore("site")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, mid, 1e-9)

	leaf, err := g.EntityInfluenceScore("dev")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, leaf, 1e-9)
	assert.Greater(t, mid, leaf)

	_, err = g.EntityInfluenceScore("nope")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestLinkEventAndBootstrapAreIdempotent(t *testing.T) {
	cfg := config.GraphConfig{Units: []string{"BWW"}, Sites: []string{"155"}, Devices: []string{"FortiGate-01"}}
	g := newTestGraph()
	require.NoError(t, g.Bootstrap(cfg))
	assert.Equal(t, 2, g.Stats().Relationships)

	dev := DeviceID("BWW", "155", "FortiGate-01")
	ev := models.Event{
		ID: "e1", Timestamp: t0, Type: models.EventSecurityIncident,
		Unit: "BWW", Site: "155", Device: "FortiGate-01",
		Severity: models.SeverityHigh, Description: "intrusion attempt",
		Metadata: map[string]any{"attack_type": "brute_force"},
	}
	_, err := g.LinkEvent(ev)
	require.NoError(t, err)
	first, err := g.EntityInfluenceScore(dev)
	require.NoError(t, err)

	_, err = g.LinkEvent(ev)
	require.NoError(t, err)
	s := g.Stats()
	assert.Equal(t, 3, s.Relationships)
	assert.Equal(t, 4, s.Nodes)
	assert.Len(t, g.in[dev], 1)
	again, err := g.EntityInfluenceScore(dev)
	require.NoError(t, err)
	assert.InDelta(t, first, again, 1e-9)

	node, ok := g.Node("event_e1")
	require.True(t, ok)
	assert.Equal(t, "brute_force", node.Properties["attack_type"])

	ev.Severity = models.SeverityCritical
	_, err = g.LinkEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Stats().Relationships)
	assert.Equal(t, 1.0, g.Relationships("event_e1")[0].Strength)

	require.NoError(t, g.Bootstrap(cfg))
	assert.Equal(t, 3, g.Stats().Relationships)
	assert.Equal(t, 4, g.Stats().Nodes)
}
