package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantara/marketd/internal/boardgraph"
	"github.com/quantara/marketd/internal/cachestore"
	"github.com/quantara/marketd/internal/domain"
	"github.com/quantara/marketd/internal/resolver"
	"github.com/quantara/marketd/internal/scheduler"
	"github.com/quantara/marketd/internal/tradedate"
)

// Handlers serves the market data endpoints.
type Handlers struct {
	resolver *resolver.Resolver
	graph    *boardgraph.Manager
	cache    *cachestore.Store
	sched    *scheduler.Scheduler
	log      zerolog.Logger
}

// NewHandlers creates the market data handlers.
func NewHandlers(res *resolver.Resolver, graph *boardgraph.Manager, cache *cachestore.Store, sched *scheduler.Scheduler, log zerolog.Logger) *Handlers {
	return &Handlers{
		resolver: res,
		graph:    graph,
		cache:    cache,
		sched:    sched,
		log:      log.With().Str("component", "handlers").Logger(),
	}
}

type resolveRequest struct {
	Codes        []string `json:"codes"`
	Period       string   `json:"period"`
	Count        int      `json:"count"`
	Start        string   `json:"start,omitempty"` // YYYY-MM-DD
	End          string   `json:"end,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

type seriesPayload struct {
	Code       string       `json:"code"`
	Bars       []domain.Bar `json:"bars"`
	Provenance string       `json:"provenance"`
	FromCache  bool         `json:"from_cache"`
}

type batchEntry struct {
	Code   string         `json:"code"`
	Result *seriesPayload `json:"result,omitempty"`
	Error  *errorPayload  `json:"error,omitempty"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HandleResolveSeries resolves bars for a batch of codes. Codes fail
// independently; the response always covers every requested code.
func (h *Handlers) HandleResolveSeries(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Codes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "codes is required"})
		return
	}

	period := domain.Period(req.Period)
	if req.Period == "" {
		period = domain.PeriodDaily
	}
	if !period.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported period: " + req.Period})
		return
	}

	start, err := parseDay(req.Start)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start date"})
		return
	}
	end, err := parseDay(req.End)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end date"})
		return
	}

	items := h.resolver.ResolveSeriesBatch(r.Context(), req.Codes, resolver.SeriesRequest{
		Period:       period,
		Count:        req.Count,
		Start:        start,
		End:          end,
		ForceRefresh: req.ForceRefresh,
	})

	out := make([]batchEntry, 0, len(items))
	for _, it := range items {
		entry := batchEntry{Code: it.RawCode}
		if it.Err != nil {
			entry.Error = &errorPayload{Kind: domain.KindOf(it.Err).String(), Message: it.Err.Error()}
		} else {
			entry.Result = &seriesPayload{
				Code:       it.Result.Code,
				Bars:       it.Result.Bars,
				Provenance: string(it.Result.Provenance),
				FromCache:  it.Result.FromCache,
			}
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": out})
}

// HandleGetSeries resolves bars for a single code from query parameters.
func (h *Handlers) HandleGetSeries(w http.ResponseWriter, r *http.Request) {
	period := domain.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = domain.PeriodDaily
	}
	if !period.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported period"})
		return
	}
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	force := r.URL.Query().Get("force_refresh") == "true"

	res, err := h.resolver.ResolveSeries(r.Context(), resolver.SeriesRequest{
		RawCode:      chi.URLParam(r, "code"),
		Period:       period,
		Count:        count,
		ForceRefresh: force,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seriesPayload{
		Code:       res.Code,
		Bars:       res.Bars,
		Provenance: string(res.Provenance),
		FromCache:  res.FromCache,
	})
}

// HandleBoardStocks lists the constituents of one board.
func (h *Handlers) HandleBoardStocks(w http.ResponseWriter, r *http.Request) {
	g, err := h.graph.Ensure(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	cons, err := g.StocksInSector(name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"board": name, "stocks": cons})
}

// HandleStockBoards lists the boards one security belongs to.
func (h *Handlers) HandleStockBoards(w http.ResponseWriter, r *http.Request) {
	g, err := h.graph.Ensure(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	code := chi.URLParam(r, "code")
	sectors, err := g.SectorsOfStock(code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": code, "boards": sectors})
}

// HandleBoardRelations reports explicitly linked and overlapping boards.
func (h *Handlers) HandleBoardRelations(w http.ResponseWriter, r *http.Request) {
	g, err := h.graph.Ensure(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	minShared, _ := strconv.Atoi(r.URL.Query().Get("min_shared"))
	rel, err := g.SectorRelations(chi.URLParam(r, "name"), minShared)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// HandleBoardIndustry returns the industry chain of one board, top first.
func (h *Handlers) HandleBoardIndustry(w http.ResponseWriter, r *http.Request) {
	g, err := h.graph.Ensure(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	chain, err := g.IndustryHierarchy(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hierarchy": chain})
}

// HandleCalendarLatest maps a date to the latest trading session on or
// before it.
func (h *Handlers) HandleCalendarLatest(w http.ResponseWriter, r *http.Request) {
	cal, err := h.calendar(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	at := time.Now()
	if q := r.URL.Query().Get("date"); q != "" {
		at, err = time.Parse("2006-01-02", q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date"})
			return
		}
	}

	latest := cal.LatestOn(at)
	if latest == "" {
		h.writeError(w, domain.E(domain.ErrNotFound, "no trading day on or before %s", at.Format("2006-01-02")))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"latest": latest, "prev": cal.Prev(latest)})
}

// HandleCalendarCheck reports whether a date is a trading session.
func (h *Handlers) HandleCalendarCheck(w http.ResponseWriter, r *http.Request) {
	cal, err := h.calendar(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	q := r.URL.Query().Get("date")
	day, err := time.Parse("2006-01-02", q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"date": q, "is_trade_date": cal.IsTradeDate(day)})
}

func (h *Handlers) calendar(r *http.Request) (*tradedate.Calendar, error) {
	res, err := h.resolver.ResolveSnapshot(r.Context(), domain.KindTradeCalendar, false)
	if err != nil {
		return nil, err
	}
	return tradedate.New(res.Snapshot.TradeDates), nil
}

// HandleGraphRefresh rebuilds the board graph, bypassing every cache tier.
func (h *Handlers) HandleGraphRefresh(w http.ResponseWriter, r *http.Request) {
	g, err := h.graph.Refresh(r.Context(), true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"update_date": g.UpdateDate(),
		"counts":      g.Counts(),
		"edges":       g.EdgeCount(),
		"edge_counts": g.EdgeCounts(),
	})
}

// HandleGraphStats reports the live graph's shape without rebuilding.
func (h *Handlers) HandleGraphStats(w http.ResponseWriter, r *http.Request) {
	g := h.graph.Current()
	if g == nil {
		h.writeError(w, domain.E(domain.ErrNotFound, "graph not built yet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"update_date": g.UpdateDate(),
		"built_at":    g.BuiltAt().Format(time.RFC3339),
		"counts":      g.Counts(),
		"edges":       g.EdgeCount(),
		"edge_counts": g.EdgeCounts(),
		"stale":       h.graph.Stale(),
	})
}

// HandleCacheClear drops cache entries. kind narrows the clear to one data
// family; without it everything goes.
func (h *Handlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	var removed int
	var err error
	if kind := r.URL.Query().Get("kind"); kind != "" {
		removed, err = h.cache.ClearKind(domain.DataKind(kind))
	} else {
		removed, err = h.cache.Clear(nil)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// HandleJobList lists the registered maintenance jobs.
func (h *Handlers) HandleJobList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.sched.JobNames()})
}

// HandleJobRun fires one maintenance job outside its schedule and waits for
// it to finish.
func (h *Handlers) HandleJobRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.sched.RunNow(name); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"})
}

// writeError maps domain error kinds to HTTP status codes. Internal detail
// stays in logs; the client sees the kind and a safe message.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)

	var exhausted *domain.TierExhaustedError
	if errors.As(err, &exhausted) {
		h.log.Warn().Err(err).Msg("Request exhausted all tiers")
		failures := make([]errorPayload, 0, len(exhausted.Failures))
		for _, f := range exhausted.Failures {
			failures = append(failures, errorPayload{Kind: domain.KindOf(f.Err).String(), Message: f.Err.Error()})
		}
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":    "all data tiers failed",
			"code":     exhausted.Code,
			"failures": failures,
		})
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case domain.ErrInvalidCode:
		status = http.StatusBadRequest
	case domain.ErrNotFound:
		status = http.StatusNotFound
	case domain.ErrSourceUnavailable, domain.ErrInsufficientData:
		status = http.StatusBadGateway
	case domain.ErrSchemaMismatch, domain.ErrCacheCorruption:
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		h.log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
