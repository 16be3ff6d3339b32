package graph

import (
	"fmt"
	"sort"
)

const (
	defaultMaxHops    = 3
	maxAffectedListed = 20
	highRiskScore     = 0.7
	monitorRiskScore  = 0.8
	criticalFactor    = 1.2
)

// AnalyzeImpactPropagation walks outward from entity breadth-first up to
// maxHops (default 3) and scores every reached node.
func (g *Graph) AnalyzeImpactPropagation(entity string, maxHops int) (ImpactAnalysis, error) {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[entity]; !ok {
		return ImpactAnalysis{}, fmt.Errorf("impact propagation: %w: %s", ErrNodeNotFound, entity)
	}

	type item struct {
		id  string
		hop int
	}
	visited := map[string]bool{entity: true}
	queue := []item{{id: entity}}
	var affected []AffectedEntity
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hop > 0 {
			n := g.nodes[cur.id]
			affected = append(affected, AffectedEntity{
				ID:         cur.id,
				Type:       n.Type,
				Hop:        cur.hop,
				Risk:       propagationRisk(n, cur.hop),
				Properties: n.Properties,
			})
		}
		if cur.hop == maxHops {
			continue
		}
		for _, nb := range g.adj[cur.id] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			queue = append(queue, item{id: nb, hop: cur.hop + 1})
		}
	}
	sort.SliceStable(affected, func(i, j int) bool { return affected[i].Risk > affected[j].Risk })

	res := ImpactAnalysis{
		Source:        entity,
		TotalAffected: len(affected),
	}
	sites := make(map[string]struct{})
	for _, a := range affected {
		switch a.Type {
		case NodeSite:
			res.SitesAffected++
			sites[a.ID] = struct{}{}
		case NodeDevice:
			res.DevicesAffected++
		}
		if a.Risk > highRiskScore {
			res.HighRisk++
		}
		if a.Hop > res.MaxDistance {
			res.MaxDistance = a.Hop
		}
	}
	res.Affected = affected
	if len(res.Affected) > maxAffectedListed {
		res.Affected = res.Affected[:maxAffectedListed]
	}
	if len(affected) == 0 {
		res.Summary = fmt.Sprintf("No propagation impact identified from %s", entity)
	} else {
		res.Summary = fmt.Sprintf("Incident at %s could affect %d entities: %d sites, %d devices. %d high-risk entities identified.",
			entity, len(affected), res.SitesAffected, res.DevicesAffected, res.HighRisk)
	}
	res.Recommendations = containment(entity, affected, len(sites))
	return res, nil
}

// propagationRisk decays with distance and scales by node type.
func propagationRisk(n *Node, hop int) float64 {
	risk := typeRisk(n.Type) / float64(hop+1)
	if isCritical(n) {
		risk *= criticalFactor
	}
	return clamp01(risk)
}

func typeRisk(t NodeType) float64 {
	switch t {
	case NodeDevice:
		return 0.8
	case NodeNetworkSegment:
		return 0.7
	case NodeSite:
		return 0.6
	case NodeUnit:
		return 0.4
	case NodeSecurityEvent, NodePerformanceEvent, NodeConfiguration, NodeUser, NodeThreatActor:
		return 0.5
	default:
		return 0.5
	}
}

func containment(source string, affected []AffectedEntity, sites int) []string {
	recs := []string{fmt.Sprintf("Isolate %s immediately to prevent further propagation", source)}
	monitor := 0
	for _, a := range affected {
		if a.Risk > monitorRiskScore {
			monitor++
		}
	}
	if monitor > 0 {
		recs = append(recs, fmt.Sprintf("Monitor %d high-risk entities for signs of compromise", monitor))
	}
	if sites > 1 {
		recs = append(recs, "Implement network segmentation between affected sites")
	}
	return append(recs,
		"Enable enhanced logging on all potentially affected systems",
		"Review and update incident response procedures",
		"Consider implementing additional monitoring controls",
	)
}
