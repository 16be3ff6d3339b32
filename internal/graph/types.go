package graph

import (
	"errors"
	"time"
)

var (
	// ErrNodeNotFound is returned when an operation names a missing node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrUnknownNodeType is returned for node types outside the closed set.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrUnknownRelationshipType is returned for relationship types outside the closed set.
	ErrUnknownRelationshipType = errors.New("unknown relationship type")
)

// NodeType is the closed set of node kinds.
type NodeType string

const (
	NodeUnit             NodeType = "unit"
	NodeSite             NodeType = "site"
	NodeDevice           NodeType = "device"
	NodeSecurityEvent    NodeType = "security_event"
	NodePerformanceEvent NodeType = "performance_event"
	NodeConfiguration    NodeType = "configuration"
	NodeUser             NodeType = "user"
	NodeNetworkSegment   NodeType = "network_segment"
	NodeThreatActor      NodeType = "threat_actor"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeUnit, NodeSite, NodeDevice, NodeSecurityEvent, NodePerformanceEvent,
		NodeConfiguration, NodeUser, NodeNetworkSegment, NodeThreatActor:
		return true
	default:
		return false
	}
}

// RelationshipType is the closed set of edge kinds.
type RelationshipType string

const (
	RelBelongsTo      RelationshipType = "belongs_to"
	RelManages        RelationshipType = "manages"
	RelConnectsTo     RelationshipType = "connects_to"
	RelAffects        RelationshipType = "affects"
	RelSimilarTo      RelationshipType = "similar_to"
	RelCausedBy       RelationshipType = "caused_by"
	RelLeadsTo        RelationshipType = "leads_to"
	RelCorrelatesWith RelationshipType = "correlates_with"
	RelOriginatedFrom RelationshipType = "originated_from"
	RelTargets        RelationshipType = "targets"
)

// Valid reports whether t is one of the known relationship types.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelBelongsTo, RelManages, RelConnectsTo, RelAffects, RelSimilarTo,
		RelCausedBy, RelLeadsTo, RelCorrelatesWith, RelOriginatedFrom, RelTargets:
		return true
	default:
		return false
	}
}

// Symmetric reports whether the relationship is stored in both directions.
func (t RelationshipType) Symmetric() bool {
	switch t {
	case RelSimilarTo, RelCorrelatesWith:
		return true
	default:
		return false
	}
}

// Node is a typed vertex with open properties.
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"node_type"`
	Properties map[string]any `json:"properties,omitempty"`
	Labels     []string       `json:"labels,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Relationship is a directed, weighted edge.
type Relationship struct {
	ID         string           `json:"id"`
	Source     string           `json:"source"`
	Target     string           `json:"target"`
	Type       RelationshipType `json:"relationship_type"`
	Properties map[string]any   `json:"properties,omitempty"`
	Strength   float64          `json:"strength"`
	CreatedAt  time.Time        `json:"created_at"`
}

// PathAnalysis lists the paths found between one source and one target.
type PathAnalysis struct {
	Source            string             `json:"source"`
	Target            string             `json:"target"`
	Paths             [][]string         `json:"paths"`
	ShortestLength    int                `json:"shortest_path_length"`
	RelationshipTypes []RelationshipType `json:"relationship_types"`
	Risk              float64            `json:"risk_score"`
	Summary           string             `json:"summary"`
}

// AffectedEntity is one node reached by impact propagation.
type AffectedEntity struct {
	ID         string         `json:"entity_id"`
	Type       NodeType       `json:"entity_type"`
	Hop        int            `json:"hop_distance"`
	Risk       float64        `json:"risk_score"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ImpactAnalysis summarizes how an incident could spread from Source.
type ImpactAnalysis struct {
	Source          string           `json:"source_entity"`
	TotalAffected   int              `json:"total_affected_entities"`
	SitesAffected   int              `json:"sites_affected"`
	DevicesAffected int              `json:"devices_affected"`
	HighRisk        int              `json:"high_risk_entities"`
	MaxDistance     int              `json:"max_propagation_distance"`
	Affected        []AffectedEntity `json:"affected_entities"`
	Summary         string           `json:"propagation_summary"`
	Recommendations []string         `json:"recommendations"`
}

// SimilarEntity is a node and its similarity to the query node.
type SimilarEntity struct {
	ID    string  `json:"entity_id"`
	Score float64 `json:"similarity"`
}

// ClusterMode selects the clustering strategy.
type ClusterMode string

const (
	ClusterConnectedComponents ClusterMode = "connected_components"
	ClusterGroupingKey         ClusterMode = "grouping_key"
)

// ClusterAnalysis describes one group of nodes.
type ClusterAnalysis struct {
	ID               string         `json:"cluster_id"`
	Type             string         `json:"cluster_type"`
	Nodes            []string       `json:"nodes"`
	CentralNodes     []string       `json:"central_nodes"`
	Score            float64        `json:"cluster_score"`
	CommonAttributes map[string]any `json:"common_attributes,omitempty"`
	RiskFactors      []string       `json:"risk_factors,omitempty"`
}

// Stats counts nodes and stored relationship entries by type.
type Stats struct {
	Nodes               int                      `json:"nodes"`
	Relationships       int                      `json:"relationships"`
	NodesByType         map[NodeType]int         `json:"nodes_by_type"`
	RelationshipsByType map[RelationshipType]int `json:"relationships_by_type"`
}
