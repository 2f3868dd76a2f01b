package boardgraph

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantara/marketd/internal/domain"
)

// snapshotVersion is bumped on any incompatible change to snapshotFile.
const snapshotVersion = "1.0"

// snapshotFile is the persisted form of the graph's raw inputs. The raw
// snapshots are stored rather than the built graph, so a load always runs
// through the same Build path as a live refresh.
type snapshotFile struct {
	Version    string             `msgpack:"version"`
	Schema     string             `msgpack:"schema"`
	UpdateDate string             `msgpack:"update_date"`
	SavedAt    int64              `msgpack:"saved_at"`
	Counts     map[string]int     `msgpack:"counts"`
	Boards     []domain.BoardDef  `msgpack:"boards"`
	Stocks     []domain.StockInfo `msgpack:"stocks"`
}

// snapshotCounts tallies board nodes per type for the persisted header.
func snapshotCounts(boards []domain.BoardDef) map[string]int {
	counts := make(map[string]int)
	for i := range boards {
		counts[boardNodeType(&boards[i]).String()]++
	}
	return counts
}

// SnapshotCache persists graph inputs across restarts.
type SnapshotCache struct {
	path string
	log  zerolog.Logger
}

// NewSnapshotCache stores the capture at path.
func NewSnapshotCache(path string, log zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{
		path: path,
		log:  log.With().Str("component", "graph_snapshot").Logger(),
	}
}

// Save writes the graph inputs atomically.
func (c *SnapshotCache) Save(boardSnap, stockSnap *domain.Snapshot) error {
	if boardSnap == nil {
		return fmt.Errorf("nil board snapshot")
	}
	file := snapshotFile{
		Version:    snapshotVersion,
		Schema:     SchemaSignature(),
		UpdateDate: boardSnap.UpdateDate,
		SavedAt:    time.Now().Unix(),
		Counts:     snapshotCounts(boardSnap.Boards),
		Boards:     boardSnap.Boards,
	}
	if stockSnap != nil {
		file.Stocks = stockSnap.Stocks
	}

	data, err := msgpack.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to encode graph snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	c.log.Info().Str("update_date", file.UpdateDate).Int("boards", len(file.Boards)).
		Msg("Graph snapshot saved")
	return nil
}

// Load reads the persisted inputs back. A missing file returns (nil, nil,
// nil). A file written under a different version or type set fails with a
// schema mismatch; an unreadable file fails with cache corruption and is
// removed so the next save starts clean.
func (c *SnapshotCache) Load() (*domain.Snapshot, *domain.Snapshot, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read graph snapshot: %w", err)
	}

	var file snapshotFile
	if err := msgpack.Unmarshal(data, &file); err != nil {
		_ = os.Remove(c.path)
		return nil, nil, domain.WrapE(domain.ErrCacheCorruption, err, "graph snapshot failed to decode")
	}
	if file.Version != snapshotVersion || file.Schema != SchemaSignature() {
		return nil, nil, domain.E(domain.ErrSchemaMismatch,
			"graph snapshot version %q does not match current %q", file.Version, snapshotVersion)
	}

	boardSnap := &domain.Snapshot{
		Kind:       domain.KindBoardInfo,
		UpdateDate: file.UpdateDate,
		Boards:     file.Boards,
	}
	stockSnap := &domain.Snapshot{
		Kind:       domain.KindStockBasic,
		UpdateDate: file.UpdateDate,
		Stocks:     file.Stocks,
	}
	return boardSnap, stockSnap, nil
}
