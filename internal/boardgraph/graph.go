package boardgraph

import (
	"sort"
	"time"

	"github.com/quantara/marketd/internal/domain"
)

// Board is a sector node with its resolved type and membership.
type Board struct {
	Code       string
	Name       string
	Type       NodeType
	ParentName string
	Related    []string
	Members    []domain.Constituent
}

// Stock is a security node with the boards it belongs to.
type Stock struct {
	Code   string
	Name   string
	Boards []string // board names, in the order boards were ingested
}

// SectorRef identifies one board in query results.
type SectorRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Overlap is a board sharing constituents with the queried one.
type Overlap struct {
	Sector SectorRef `json:"sector"`
	Shared int       `json:"shared"`
}

// Relations is the answer to a sector relation query: boards the source
// links explicitly, plus boards discovered through shared constituents.
type Relations struct {
	Explicit    []SectorRef `json:"explicit"`
	Overlapping []Overlap   `json:"overlapping"`
}

// Graph is an immutable snapshot of the board relationship structure.
type Graph struct {
	updateDate string
	builtAt    time.Time

	boardOrder []string          // names in ingest order
	boards     map[string]*Board // by name
	byCode     map[string]string // board code -> name
	stocks     map[string]*Stock // by canonical code
	counts     map[string]int    // by NodeType name
	edges      map[string]int    // by EdgeType name
}

// Build constructs a graph from a board snapshot and an optional stock
// snapshot. Duplicate board names merge last-write-wins while keeping the
// first occurrence's position, so rebuilds from identical input are
// deterministic.
func Build(boardSnap, stockSnap *domain.Snapshot) (*Graph, error) {
	if boardSnap == nil || boardSnap.Empty() {
		return nil, domain.E(domain.ErrInsufficientData, "board snapshot is empty")
	}

	g := &Graph{
		updateDate: boardSnap.UpdateDate,
		builtAt:    time.Now(),
		boards:     make(map[string]*Board),
		byCode:     make(map[string]string),
		stocks:     make(map[string]*Stock),
		counts:     make(map[string]int),
		edges:      make(map[string]int),
	}

	for i := range boardSnap.Boards {
		def := &boardSnap.Boards[i]
		if def.Name == "" {
			continue
		}
		b := &Board{
			Code:       def.Code,
			Name:       def.Name,
			Type:       boardNodeType(def),
			ParentName: def.ParentName,
			Related:    def.Related,
			Members:    def.Cons,
		}
		if _, seen := g.boards[def.Name]; !seen {
			g.boardOrder = append(g.boardOrder, def.Name)
		}
		g.boards[def.Name] = b
	}

	// Stock reference data first, so board members enrich rather than
	// shadow it.
	if stockSnap != nil {
		for _, si := range stockSnap.Stocks {
			g.stocks[si.Code] = &Stock{Code: si.Code, Name: si.Name}
		}
	}

	for _, name := range g.boardOrder {
		b := g.boards[name]
		if b.Code != "" {
			g.byCode[b.Code] = name
		}
		g.counts[b.Type.String()]++

		// Board-to-board links take their type from the board's node type;
		// parent links and explicit relations count alike.
		linkType := boardEdgeType(b.Type).String()
		g.edges[linkType] += len(b.Related)
		if b.ParentName != "" {
			g.edges[linkType]++
		}

		for _, m := range b.Members {
			st, ok := g.stocks[m.Code]
			if !ok {
				st = &Stock{Code: m.Code, Name: m.Name}
				g.stocks[m.Code] = st
			} else if st.Name == "" {
				st.Name = m.Name
			}
			st.Boards = append(st.Boards, name)
			g.edges[EdgeMembership.String()]++
		}
	}
	g.counts[NodeStock.String()] = len(g.stocks)

	return g, nil
}

// UpdateDate returns the calendar date of the underlying snapshot.
func (g *Graph) UpdateDate() string { return g.updateDate }

// BuiltAt returns when this graph instance was constructed.
func (g *Graph) BuiltAt() time.Time { return g.builtAt }

// Counts returns node totals per type.
func (g *Graph) Counts() map[string]int {
	out := make(map[string]int, len(g.counts))
	for k, v := range g.counts {
		out[k] = v
	}
	return out
}

// EdgeCount returns the total number of edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, n := range g.edges {
		total += n
	}
	return total
}

// EdgeCounts returns edge totals per type.
func (g *Graph) EdgeCounts() map[string]int {
	out := make(map[string]int, len(g.edges))
	for k, v := range g.edges {
		out[k] = v
	}
	return out
}

// BoardNames returns every board name in ingest order.
func (g *Graph) BoardNames() []string {
	out := make([]string, len(g.boardOrder))
	copy(out, g.boardOrder)
	return out
}

// BoardCode resolves a board name to its source code.
func (g *Graph) BoardCode(name string) (string, error) {
	b, ok := g.boards[name]
	if !ok {
		return "", domain.E(domain.ErrNotFound, "unknown board: %s", name)
	}
	return b.Code, nil
}

// BoardName resolves a board source code to its name.
func (g *Graph) BoardName(code string) (string, error) {
	name, ok := g.byCode[code]
	if !ok {
		return "", domain.E(domain.ErrNotFound, "unknown board code: %s", code)
	}
	return name, nil
}

// StocksInSector returns the constituents of one board in source order.
func (g *Graph) StocksInSector(name string) ([]domain.Constituent, error) {
	b, ok := g.lookup(name)
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "unknown board: %s", name)
	}
	out := make([]domain.Constituent, len(b.Members))
	copy(out, b.Members)
	return out, nil
}

// SectorsOfStock returns every board one security belongs to, in the order
// the boards were ingested.
func (g *Graph) SectorsOfStock(code string) ([]SectorRef, error) {
	st, ok := g.stocks[code]
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "unknown stock: %s", code)
	}
	out := make([]SectorRef, 0, len(st.Boards))
	for _, name := range st.Boards {
		out = append(out, g.ref(g.boards[name]))
	}
	return out, nil
}

// SectorRelations returns boards connected to the named one: links the
// source reports explicitly, plus boards sharing at least minShared
// constituents. Overlaps are ordered by shared count descending, then name.
func (g *Graph) SectorRelations(name string, minShared int) (*Relations, error) {
	b, ok := g.lookup(name)
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "unknown board: %s", name)
	}
	if minShared < 1 {
		minShared = 1
	}

	rel := &Relations{}
	for _, r := range b.Related {
		if other, ok := g.lookup(r); ok && other.Name != b.Name {
			rel.Explicit = append(rel.Explicit, g.ref(other))
		}
	}

	shared := make(map[string]int)
	for _, m := range b.Members {
		st, ok := g.stocks[m.Code]
		if !ok {
			continue
		}
		for _, otherName := range st.Boards {
			if otherName != b.Name {
				shared[otherName]++
			}
		}
	}
	for otherName, n := range shared {
		if n >= minShared {
			rel.Overlapping = append(rel.Overlapping, Overlap{Sector: g.ref(g.boards[otherName]), Shared: n})
		}
	}
	sort.Slice(rel.Overlapping, func(i, j int) bool {
		if rel.Overlapping[i].Shared != rel.Overlapping[j].Shared {
			return rel.Overlapping[i].Shared > rel.Overlapping[j].Shared
		}
		return rel.Overlapping[i].Sector.Name < rel.Overlapping[j].Sector.Name
	})

	return rel, nil
}

// IndustryHierarchy returns the industry chain for one board, top level
// first. Only industry boards sit in the hierarchy.
func (g *Graph) IndustryHierarchy(name string) ([]SectorRef, error) {
	b, ok := g.lookup(name)
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "unknown board: %s", name)
	}
	if !isIndustry(b.Type) {
		return nil, domain.E(domain.ErrNotFound, "board %s is not part of the industry hierarchy", b.Name)
	}

	// Climb parent links, then reverse. Three levels exist; the bound
	// guards against a parent cycle in bad source data.
	chain := []SectorRef{g.ref(b)}
	cur := b
	for hops := 0; cur.ParentName != "" && hops < 3; hops++ {
		parent, ok := g.boards[cur.ParentName]
		if !ok || !isIndustry(parent.Type) {
			break
		}
		chain = append(chain, g.ref(parent))
		cur = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// lookup accepts either a board name or a board code.
func (g *Graph) lookup(nameOrCode string) (*Board, bool) {
	if b, ok := g.boards[nameOrCode]; ok {
		return b, true
	}
	if name, ok := g.byCode[nameOrCode]; ok {
		return g.boards[name], true
	}
	return nil, false
}

func (g *Graph) ref(b *Board) SectorRef {
	return SectorRef{Code: b.Code, Name: b.Name, Type: b.Type.String()}
}

func isIndustry(t NodeType) bool {
	return t == NodeIndustryL1 || t == NodeIndustryL2 || t == NodeIndustryL3
}
