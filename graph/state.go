package graph

import (
	"sort"
	"time"
)

// graphState is the mutable assembly area for one graph. It owns the dedup
// indexes; nodes and edges live in bounded collections so no merge path can
// exceed the memory caps. Not safe for concurrent use: the builder guards it.
type graphState struct {
	nodes     *Bounded[IdentityNode]
	nodeIndex map[string]int // id -> index into nodes

	edges     *Bounded[FollowEdge]
	edgeIndex map[string]int // "source|target" -> index into edges

	secondDegree int
}

func newGraphState(maxNodes, maxEdges int) *graphState {
	return &graphState{
		nodes:     NewBounded[IdentityNode](maxNodes),
		nodeIndex: make(map[string]int),
		edges:     NewBounded[FollowEdge](maxEdges),
		edgeIndex: make(map[string]int),
	}
}

// addNode inserts a bare node if the id is new, returning whether the node
// is now present (existing nodes count as present). The id is the sole
// dedup key.
func (s *graphState) addNode(node IdentityNode) bool {
	if _, exists := s.nodeIndex[node.ID]; exists {
		return true
	}
	if !s.nodes.Append(node) {
		return false
	}
	s.nodeIndex[node.ID] = s.nodes.Len() - 1
	if node.IsSecondDegree {
		s.secondDegree++
	}
	return true
}

// node returns the stored node for in-place mutation, or nil.
func (s *graphState) node(id string) *IdentityNode {
	i, ok := s.nodeIndex[id]
	if !ok {
		return nil
	}
	return s.nodes.At(i)
}

// addEdge inserts a follows edge once per ordered (source, target) pair.
// Both endpoints must already be nodes; dangling references are refused so
// the graph invariant (every edge endpoint exists in nodes) holds by
// construction.
func (s *graphState) addEdge(source, target string) {
	if source == target {
		return
	}
	if _, ok := s.nodeIndex[source]; !ok {
		return
	}
	if _, ok := s.nodeIndex[target]; !ok {
		return
	}

	key := source + "|" + target
	if _, exists := s.edgeIndex[key]; exists {
		return
	}
	if !s.edges.Append(FollowEdge{
		Source: source,
		Target: target,
		Kind:   EdgeFollows,
		Weight: followWeight,
	}) {
		return
	}
	s.edgeIndex[key] = s.edges.Len() - 1
}

// markMutuals runs one pass over the full edge set and upgrades every pair
// (A→B, B→A) to mutual with increased weight. Running once after expansion,
// not incrementally, keeps the result independent of merge order.
func (s *graphState) markMutuals() {
	for i := 0; i < s.edges.Len(); i++ {
		e := s.edges.At(i)
		reverseKey := e.Target + "|" + e.Source
		if _, ok := s.edgeIndex[reverseKey]; ok {
			e.Kind = EdgeMutual
			e.Weight = mutualWeight
		}
	}
}

// applyScores writes relevance scores onto matching nodes.
func (s *graphState) applyScores(scores map[string]float64) {
	for id, score := range scores {
		if n := s.node(id); n != nil {
			n.RelevanceScore = score
		}
	}
}

// snapshot copies the state into an immutable SocialGraph with
// deterministic ordering: nodes by id, edges by (source, target). The
// builder keeps mutating the state afterwards (background profile fill,
// expansion); handed-out graphs never change underneath their consumers.
func (s *graphState) snapshot(now time.Time) *SocialGraph {
	nodes := make([]IdentityNode, s.nodes.Len())
	copy(nodes, s.nodes.Items())
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]FollowEdge, s.edges.Len())
	copy(edges, s.edges.Items())
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	return &SocialGraph{
		Nodes:       nodes,
		Edges:       edges,
		LastUpdated: now,
	}
}
