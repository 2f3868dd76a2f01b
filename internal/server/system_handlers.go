package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantara/marketd/internal/boardgraph"
	"github.com/quantara/marketd/internal/cachestore"
	"github.com/quantara/marketd/internal/database"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	storeDB     *database.DB
	graph       *boardgraph.Manager
	cache       *cachestore.Store
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, storeDB *database.DB, graph *boardgraph.Manager, cache *cachestore.Store) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		storeDB:     storeDB,
		graph:       graph,
		cache:       cache,
	}
}

// HandleHealth is the liveness probe.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSystemStatus reports process, host and component state.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startupTime).Seconds()),
		"data_dir":       h.dataDir,
		"goroutines":     runtime.NumGoroutine(),
	}

	// Host metrics are best effort; a sandboxed environment may refuse them.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = vm.UsedPercent
		status["memory_used_mb"] = vm.Used / 1024 / 1024
	}

	if h.storeDB != nil {
		dbStatus := "ok"
		if err := h.storeDB.HealthCheck(r.Context()); err != nil {
			dbStatus = err.Error()
			status["status"] = "degraded"
		}
		status["store_db"] = dbStatus
	}

	if h.graph != nil {
		graphInfo := map[string]interface{}{"built": false, "stale": true}
		if g := h.graph.Current(); g != nil {
			graphInfo["built"] = true
			graphInfo["stale"] = h.graph.Stale()
			graphInfo["update_date"] = g.UpdateDate()
			graphInfo["edges"] = g.EdgeCount()
		}
		status["graph"] = graphInfo
	}

	writeJSON(w, http.StatusOK, status)
}
