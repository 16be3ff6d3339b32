package graph

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"opsmemory/internal/logger"
)

const (
	defaultSimilarity = 0.7
	minClusterSize    = 3
	centralNodes      = 3
)

// FindSimilarEntities returns nodes of the same type whose similarity to
// entity is at least threshold (default 0.7), most similar first.
func (g *Graph) FindSimilarEntities(entity string, threshold float64) ([]SimilarEntity, error) {
	if threshold <= 0 {
		threshold = defaultSimilarity
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	base, ok := g.nodes[entity]
	if !ok {
		return nil, fmt.Errorf("find similar: %w: %s", ErrNodeNotFound, entity)
	}
	var out []SimilarEntity
	for _, id := range g.order {
		n := g.nodes[id]
		if id == entity || n.Type != base.Type {
			continue
		}
		if score := similarity(base, n); score >= threshold {
			out = append(out, SimilarEntity{ID: id, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// similarity averages the shared-property match ratio with the label
// Jaccard index. No shared properties means no similarity.
func similarity(a, b *Node) float64 {
	if a.Type != b.Type {
		return 0
	}
	common, matches := 0, 0
	for k, av := range a.Properties {
		bv, ok := b.Properties[k]
		if !ok {
			continue
		}
		common++
		if reflect.DeepEqual(av, bv) {
			matches++
		}
	}
	if common == 0 {
		return 0
	}
	score := float64(matches) / float64(common)

	union := make(map[string]struct{}, len(a.Labels)+len(b.Labels))
	inA := make(map[string]struct{}, len(a.Labels))
	for _, l := range a.Labels {
		union[l] = struct{}{}
		inA[l] = struct{}{}
	}
	shared := make(map[string]struct{})
	for _, l := range b.Labels {
		union[l] = struct{}{}
		if _, ok := inA[l]; ok {
			shared[l] = struct{}{}
		}
	}
	if len(union) > 0 {
		score = (score + float64(len(shared))/float64(len(union))) / 2
	}
	return score
}

// FindNetworkClusters groups nodes either by undirected connectivity or by
// their unit property. Groups smaller than three are dropped; the rest are
// ordered by density score.
func (g *Graph) FindNetworkClusters(mode ClusterMode) []ClusterAnalysis {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []ClusterAnalysis
	switch mode {
	case ClusterConnectedComponents, "":
		for i, comp := range g.components() {
			if len(comp) >= minClusterSize {
				out = append(out, g.analyzeCluster(fmt.Sprintf("component_%d", i), comp))
			}
		}
	case ClusterGroupingKey:
		groups := make(map[string][]string)
		var keys []string
		for _, id := range g.order {
			n := g.nodes[id]
			if n.Type != NodeSite && n.Type != NodeDevice {
				continue
			}
			key := fmt.Sprint(n.Properties["unit"])
			if n.Properties["unit"] == nil {
				key = "unknown"
			}
			if _, ok := groups[key]; !ok {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], id)
		}
		for _, key := range keys {
			if len(groups[key]) >= minClusterSize {
				out = append(out, g.analyzeCluster("unit_"+key, groups[key]))
			}
		}
	default:
		logger.Warnf("unknown cluster mode %q", mode)
		return nil
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	logger.Infof("found %d network clusters", len(out))
	return out
}

func (g *Graph) components() [][]string {
	visited := make(map[string]bool, len(g.nodes))
	var out [][]string
	for _, start := range g.order {
		if visited[start] {
			continue
		}
		var comp []string
		stack := []string{start}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			comp = append(comp, cur)
			for _, nb := range g.adj[cur] {
				if !visited[nb] {
					stack = append(stack, nb)
				}
			}
		}
		out = append(out, comp)
	}
	return out
}

func (g *Graph) analyzeCluster(id string, members []string) ClusterAnalysis {
	in := make(map[string]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	degree := make(map[string]int, len(members))
	total := 0
	for _, m := range members {
		for _, nb := range g.adj[m] {
			if in[nb] {
				degree[m]++
			}
		}
		total += degree[m]
	}

	central := append([]string(nil), members...)
	sort.SliceStable(central, func(i, j int) bool { return degree[central[i]] > degree[central[j]] })
	if len(central) > centralNodes {
		central = central[:centralNodes]
	}

	common := make(map[string]any)
	for k, v := range g.nodes[members[0]].Properties {
		shared := true
		for _, m := range members[1:] {
			if !reflect.DeepEqual(g.nodes[m].Properties[k], v) {
				shared = false
				break
			}
		}
		if shared {
			common[k] = v
		}
	}

	var risks []string
	security := 0
	units := make(map[string]struct{})
	for _, m := range members {
		n := g.nodes[m]
		if n.Type == NodeSecurityEvent {
			security++
		}
		if u, ok := n.Properties["unit"].(string); ok && u != "" {
			units[u] = struct{}{}
		}
	}
	if security > 0 {
		risks = append(risks, fmt.Sprintf("%d security events in cluster", security))
	}
	if len(units) > 1 {
		names := make([]string, 0, len(units))
		for u := range units {
			names = append(names, u)
		}
		sort.Strings(names)
		risks = append(risks, "Cross-unit cluster: "+strings.Join(names, ", "))
	}

	kind := "mixed"
	if t, ok := common["type"].(string); ok {
		kind = t
	}
	avg := float64(total) / float64(len(members))
	return ClusterAnalysis{
		ID:               id,
		Type:             kind,
		Nodes:            members,
		CentralNodes:     central,
		Score:            avg / float64(len(members)),
		CommonAttributes: common,
		RiskFactors:      risks,
	}
}
