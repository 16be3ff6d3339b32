package graph

import (
	"fmt"
	"sort"
	"strings"

	"opsmemory/internal/logger"
)

// AnalyzeAttackPaths searches bounded paths from each source to each
// target. Nil sources default to security-relevant devices (or the first
// three devices); nil targets default to critical infrastructure. Results
// are ordered by risk, highest first.
func (g *Graph) AnalyzeAttackPaths(sources, targets []string) []PathAnalysis {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(sources) == 0 {
		sources = g.compromisedNodes()
	}
	if len(targets) == 0 {
		targets = g.criticalNodes()
	}

	var out []PathAnalysis
	for _, src := range sources {
		if _, ok := g.nodes[src]; !ok {
			continue
		}
		for _, dst := range targets {
			if src == dst {
				continue
			}
			if _, ok := g.nodes[dst]; !ok {
				continue
			}
			paths := g.findPaths(src, dst)
			if len(paths) == 0 {
				continue
			}
			shortest := paths[0]
			for _, p := range paths[1:] {
				if len(p) < len(shortest) {
					shortest = p
				}
			}
			out = append(out, PathAnalysis{
				Source:            src,
				Target:            dst,
				Paths:             paths,
				ShortestLength:    len(shortest),
				RelationshipTypes: g.pathRelationships(shortest),
				Risk:              g.pathRisk(shortest),
				Summary: fmt.Sprintf("Found %d potential attack paths from %s to %s. Shortest path has %d hops: %s",
					len(paths), src, dst, len(shortest)-1, strings.Join(shortest, " -> ")),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Risk > out[j].Risk })
	logger.Infof("analyzed %d attack paths", len(out))
	return out
}

// findPaths enumerates simple paths of at most maxPathHops edges with an
// explicit stack, stopping after maxPathsPerPair.
func (g *Graph) findPaths(src, dst string) [][]string {
	type frame struct {
		node string
		next int
	}
	var paths [][]string
	stack := []frame{{node: src}}
	path := []string{src}
	onPath := map[string]bool{src: true}

	for len(stack) > 0 && len(paths) < maxPathsPerPair {
		top := &stack[len(stack)-1]
		neighbors := g.adj[top.node]
		if top.next >= len(neighbors) || len(path)-1 >= g.maxPathHops {
			onPath[top.node] = false
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
			continue
		}
		nb := neighbors[top.next]
		top.next++
		if onPath[nb] {
			continue
		}
		if nb == dst {
			found := make([]string, len(path)+1)
			copy(found, path)
			found[len(path)] = nb
			paths = append(paths, found)
			continue
		}
		onPath[nb] = true
		path = append(path, nb)
		stack = append(stack, frame{node: nb})
	}
	return paths
}

func (g *Graph) pathRelationships(path []string) []RelationshipType {
	var out []RelationshipType
	for i := 0; i+1 < len(path); i++ {
		if r, ok := g.edgeBetween(path[i], path[i+1]); ok {
			out = append(out, r.Type)
		}
	}
	return out
}

// pathRisk favors short paths through critical nodes over strong edges.
func (g *Graph) pathRisk(path []string) float64 {
	if len(path) < 2 {
		return 0
	}
	critical := 0
	for _, id := range path {
		if isCritical(g.nodes[id]) {
			critical++
		}
	}
	strength, edges := 0.0, 0
	for i := 0; i+1 < len(path); i++ {
		if r, ok := g.edgeBetween(path[i], path[i+1]); ok {
			strength += r.Strength
			edges++
		}
	}
	if edges > 0 {
		strength /= float64(edges)
	}
	n := float64(len(path))
	return clamp01(0.4/n + 0.4*float64(critical)/n + 0.2*strength)
}

func (g *Graph) compromisedNodes() []string {
	var out, devices []string
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Type != NodeDevice {
			continue
		}
		devices = append(devices, id)
		if isSecurityRelevant(n) {
			out = append(out, id)
		}
	}
	if len(out) > 0 {
		return out
	}
	if len(devices) > 3 {
		devices = devices[:3]
	}
	return devices
}

func (g *Graph) criticalNodes() []string {
	var out []string
	for _, id := range g.order {
		if isCritical(g.nodes[id]) {
			out = append(out, id)
		}
	}
	return out
}
