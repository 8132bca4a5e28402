// Package graph assembles the weighted social graph: seed identities, their
// contact lists, optional second-degree expansion, mutual-edge detection,
// and per-identity relevance scores.
package graph

import (
	"time"
)

// EdgeKind distinguishes one-way follows from mutual relationships.
type EdgeKind string

const (
	EdgeFollows EdgeKind = "follows"
	EdgeMutual  EdgeKind = "mutual"
)

// Edge weights. A mutual relationship counts double in layout physics.
const (
	followWeight = 1.0
	mutualWeight = 2.0
)

// IdentityNode is one identity in the graph. Profile fields fill in
// asynchronously as metadata arrives; a node with only an ID is valid.
type IdentityNode struct {
	ID             string  `json:"id"`
	DisplayName    string  `json:"displayName,omitempty"`
	AvatarURL      string  `json:"avatarUrl,omitempty"`
	IsCoreNode     bool    `json:"isCoreNode"`
	IsSecondDegree bool    `json:"isSecondDegree"`
	RelevanceScore float64 `json:"relevanceScore,omitempty"`
}

// FollowEdge is a directed follow relationship. At most one edge exists per
// ordered (source, target) pair. The weight marshals as "value": the D3
// consumers on the other side of the HTTP boundary expect that name.
type FollowEdge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
	Weight float64  `json:"value"`
}

// SocialGraph is the unit cached and handed across the core/UI boundary.
// Every edge's source and target reference an id present in Nodes.
type SocialGraph struct {
	Nodes       []IdentityNode `json:"nodes"`
	Edges       []FollowEdge   `json:"links"`
	LastUpdated time.Time      `json:"timestamp"`
}

// CoreCount returns the number of core (seed) nodes.
func (g *SocialGraph) CoreCount() int {
	n := 0
	for _, node := range g.Nodes {
		if node.IsCoreNode {
			n++
		}
	}
	return n
}

// Phase is the lifecycle of one build invocation. Builds always reach
// PhaseDone, even on partial failure: missing profiles or contact lists
// degrade to bare nodes and omitted edges, never an abort.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetchingSeedProfiles
	PhaseFetchingContactLists
	PhaseMergingGraph
	PhaseExpandingSecondDegree
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetchingSeedProfiles:
		return "fetching_seed_profiles"
	case PhaseFetchingContactLists:
		return "fetching_contact_lists"
	case PhaseMergingGraph:
		return "merging_graph"
	case PhaseExpandingSecondDegree:
		return "expanding_second_degree"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}
