// Package boardgraph builds and serves the in-memory relationship graph of
// stocks, industry boards, concept boards and index boards. The graph is
// immutable once built; refreshes construct a replacement and swap it in
// atomically, so readers never see a partially rebuilt structure.
package boardgraph

import (
	"strings"

	"github.com/quantara/marketd/internal/domain"
)

// NodeType classifies a graph node.
type NodeType uint8

const (
	NodeStock NodeType = iota
	NodeIndustryL1
	NodeIndustryL2
	NodeIndustryL3
	NodeConcept
	NodeIndex

	nodeTypeCount
)

// String returns the persisted name of the node type. This is the single
// naming point; the schema signature and all serialization go through it.
func (t NodeType) String() string {
	switch t {
	case NodeStock:
		return "stock"
	case NodeIndustryL1:
		return "industry_l1"
	case NodeIndustryL2:
		return "industry_l2"
	case NodeIndustryL3:
		return "industry_l3"
	case NodeConcept:
		return "concept"
	case NodeIndex:
		return "index"
	default:
		return "unknown"
	}
}

// EdgeType classifies a graph edge.
type EdgeType uint8

const (
	EdgeMembership EdgeType = iota
	EdgeIndustryLink
	EdgeConceptLink
	EdgeIndexLink

	edgeTypeCount
)

func (t EdgeType) String() string {
	switch t {
	case EdgeMembership:
		return "membership"
	case EdgeIndustryLink:
		return "industry_link"
	case EdgeConceptLink:
		return "concept_link"
	case EdgeIndexLink:
		return "index_link"
	default:
		return "unknown"
	}
}

// SchemaSignature enumerates every node and edge type the graph knows.
// Persisted captures carry it, so a file written before a type was added or
// renamed refuses to load instead of silently building a different graph.
func SchemaSignature() string {
	var sb strings.Builder
	sb.WriteString("nodes:")
	for t := NodeType(0); t < nodeTypeCount; t++ {
		if t > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t.String())
	}
	sb.WriteString("|edges:")
	for t := EdgeType(0); t < edgeTypeCount; t++ {
		if t > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t.String())
	}
	return sb.String()
}

// boardNodeType maps a raw board definition to its node type.
func boardNodeType(b *domain.BoardDef) NodeType {
	switch b.Class {
	case domain.BoardIndustry:
		switch b.Level {
		case 2:
			return NodeIndustryL2
		case 3:
			return NodeIndustryL3
		default:
			return NodeIndustryL1
		}
	case domain.BoardIndex:
		return NodeIndex
	default:
		return NodeConcept
	}
}

// boardEdgeType maps a board's node type to the edge type of its
// board-to-board links.
func boardEdgeType(t NodeType) EdgeType {
	switch t {
	case NodeConcept:
		return EdgeConceptLink
	case NodeIndex:
		return EdgeIndexLink
	default:
		return EdgeIndustryLink
	}
}
