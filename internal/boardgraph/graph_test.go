package boardgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantara/marketd/internal/domain"
)

func testBoardSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Kind:       domain.KindBoardInfo,
		UpdateDate: "2026-03-10",
		Boards: []domain.BoardDef{
			{
				Code: "HY100", Name: "金融", Class: domain.BoardIndustry, Level: 1,
			},
			{
				Code: "HY110", Name: "银行", Class: domain.BoardIndustry, Level: 2, ParentName: "金融",
			},
			{
				Code: "HY111", Name: "股份制银行", Class: domain.BoardIndustry, Level: 3, ParentName: "银行",
				Cons: []domain.Constituent{
					{Code: "600000", Name: "浦发银行"},
					{Code: "000001", Name: "平安银行"},
					{Code: "600036", Name: "招商银行"},
				},
			},
			{
				Code: "BK0900", Name: "金融科技", Class: domain.BoardConcept,
				Related: []string{"HY111"},
				Cons: []domain.Constituent{
					{Code: "000001", Name: "平安银行"},
					{Code: "600036", Name: "招商银行"},
					{Code: "300033", Name: "同花顺"},
				},
			},
			{
				Code: "000016", Name: "上证50", Class: domain.BoardIndex,
				Cons: []domain.Constituent{
					{Code: "600000", Name: "浦发银行"},
					{Code: "600036", Name: "招商银行"},
				},
			},
		},
	}
}

func testStockSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Kind:       domain.KindStockBasic,
		UpdateDate: "2026-03-10",
		Stocks: []domain.StockInfo{
			{Code: "600000", Name: "浦发银行", PE: 5.1},
			{Code: "000001", Name: "平安银行", PE: 6.3},
		},
	}
}

func buildTestGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := Build(testBoardSnapshot(), testStockSnapshot())
	require.NoError(t, err)
	return g
}

func TestBuildCounts(t *testing.T) {
	g := buildTestGraph(t)

	counts := g.Counts()
	assert.Equal(t, 1, counts[NodeIndustryL1.String()])
	assert.Equal(t, 1, counts[NodeIndustryL2.String()])
	assert.Equal(t, 1, counts[NodeIndustryL3.String()])
	assert.Equal(t, 1, counts[NodeConcept.String()])
	assert.Equal(t, 1, counts[NodeIndex.String()])
	// 600000, 000001, 600036 and 300033.
	assert.Equal(t, 4, counts[NodeStock.String()])

	// 8 memberships, 1 related link from the concept board, 2 industry
	// parent links.
	assert.Equal(t, 11, g.EdgeCount())
	edges := g.EdgeCounts()
	assert.Equal(t, 8, edges[EdgeMembership.String()])
	assert.Equal(t, 1, edges[EdgeConceptLink.String()])
	assert.Equal(t, 2, edges[EdgeIndustryLink.String()])
	assert.Equal(t, "2026-03-10", g.UpdateDate())
}

func TestBuildRejectsEmptySnapshot(t *testing.T) {
	_, err := Build(&domain.Snapshot{Kind: domain.KindBoardInfo}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInsufficientData))
}

func TestDuplicateBoardNameLastWriteWins(t *testing.T) {
	snap := testBoardSnapshot()
	snap.Boards = append(snap.Boards, domain.BoardDef{
		Code: "BK0900", Name: "金融科技", Class: domain.BoardConcept,
		Cons: []domain.Constituent{{Code: "300033", Name: "同花顺"}},
	})

	g, err := Build(snap, nil)
	require.NoError(t, err)

	cons, err := g.StocksInSector("金融科技")
	require.NoError(t, err)
	require.Len(t, cons, 1)
	assert.Equal(t, "300033", cons[0].Code)
	// The board count does not double.
	assert.Equal(t, 1, g.Counts()[NodeConcept.String()])
}

func TestStocksInSectorPreservesSourceOrder(t *testing.T) {
	g := buildTestGraph(t)

	cons, err := g.StocksInSector("股份制银行")
	require.NoError(t, err)
	require.Len(t, cons, 3)
	assert.Equal(t, "600000", cons[0].Code)
	assert.Equal(t, "000001", cons[1].Code)
	assert.Equal(t, "600036", cons[2].Code)

	// A board code works as the lookup key too.
	byCode, err := g.StocksInSector("HY111")
	require.NoError(t, err)
	assert.Equal(t, cons, byCode)
}

func TestStocksInSectorNotFound(t *testing.T) {
	g := buildTestGraph(t)

	_, err := g.StocksInSector("不存在的板块")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}

func TestSectorsOfStock(t *testing.T) {
	g := buildTestGraph(t)

	sectors, err := g.SectorsOfStock("600036")
	require.NoError(t, err)
	require.Len(t, sectors, 3)
	// Ingest order: industry board first, then concept, then index.
	assert.Equal(t, "股份制银行", sectors[0].Name)
	assert.Equal(t, "金融科技", sectors[1].Name)
	assert.Equal(t, "上证50", sectors[2].Name)
	assert.Equal(t, "concept", sectors[1].Type)

	_, err = g.SectorsOfStock("999999")
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}

func TestSectorRelations(t *testing.T) {
	g := buildTestGraph(t)

	rel, err := g.SectorRelations("金融科技", 1)
	require.NoError(t, err)

	// The explicit link resolves the related code to its board.
	require.Len(t, rel.Explicit, 1)
	assert.Equal(t, "股份制银行", rel.Explicit[0].Name)

	// Overlaps ordered by shared count: two banks with 股份制银行, one
	// stock each with 上证50.
	require.Len(t, rel.Overlapping, 2)
	assert.Equal(t, "股份制银行", rel.Overlapping[0].Sector.Name)
	assert.Equal(t, 2, rel.Overlapping[0].Shared)
	assert.Equal(t, "上证50", rel.Overlapping[1].Sector.Name)
	assert.Equal(t, 1, rel.Overlapping[1].Shared)
}

func TestSectorRelationsMinSharedFilters(t *testing.T) {
	g := buildTestGraph(t)

	rel, err := g.SectorRelations("金融科技", 2)
	require.NoError(t, err)
	require.Len(t, rel.Overlapping, 1)
	assert.Equal(t, "股份制银行", rel.Overlapping[0].Sector.Name)
}

func TestIndustryHierarchy(t *testing.T) {
	g := buildTestGraph(t)

	chain, err := g.IndustryHierarchy("股份制银行")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "金融", chain[0].Name)
	assert.Equal(t, "银行", chain[1].Name)
	assert.Equal(t, "股份制银行", chain[2].Name)

	// A top-level board is its own chain.
	chain, err = g.IndustryHierarchy("金融")
	require.NoError(t, err)
	require.Len(t, chain, 1)

	// Concept boards sit outside the hierarchy.
	_, err = g.IndustryHierarchy("金融科技")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}

func TestNameCodeLookups(t *testing.T) {
	g := buildTestGraph(t)

	code, err := g.BoardCode("银行")
	require.NoError(t, err)
	assert.Equal(t, "HY110", code)

	name, err := g.BoardName("BK0900")
	require.NoError(t, err)
	assert.Equal(t, "金融科技", name)

	_, err = g.BoardName("XX999")
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}

func TestRebuildIsDeterministic(t *testing.T) {
	a, err := Build(testBoardSnapshot(), testStockSnapshot())
	require.NoError(t, err)
	b, err := Build(testBoardSnapshot(), testStockSnapshot())
	require.NoError(t, err)

	assert.Equal(t, a.BoardNames(), b.BoardNames())
	assert.Equal(t, a.Counts(), b.Counts())
	assert.Equal(t, a.EdgeCount(), b.EdgeCount())

	aStocks, _ := a.SectorsOfStock("600036")
	bStocks, _ := b.SectorsOfStock("600036")
	assert.Equal(t, aStocks, bStocks)
}
