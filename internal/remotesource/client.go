// Package remotesource is the secondary resolution tier: an HTTP client for
// the upstream market data gateway. It is the slowest tier and the only one
// that leaves the process, so the resolver consults it last.
package remotesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantara/marketd/internal/domain"
	"github.com/quantara/marketd/internal/symbols"
)

// Client talks to the market data gateway.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// New creates a gateway client. timeout bounds every single request.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "market-gateway").Logger(),
	}
}

// Name implements domain.Source.
func (c *Client) Name() string { return "remote" }

type klineResponse struct {
	Code string       `json:"code"`
	Bars []domain.Bar `json:"bars"`
}

// FetchSeries pulls bars for one code from the gateway, oldest first.
func (c *Client) FetchSeries(ctx context.Context, code string, period domain.Period, count int, start, end time.Time) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("code", code)
	q.Set("period", string(period))
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}
	if !start.IsZero() {
		q.Set("start", start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		q.Set("end", end.Format(time.RFC3339))
	}

	var result klineResponse
	if err := c.getJSON(ctx, "/api/v1/kline", q, &result); err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("code", code).
		Str("period", string(period)).
		Int("bars", len(result.Bars)).
		Msg("Fetched series from gateway")

	return result.Bars, nil
}

// FetchSnapshot pulls a complete capture of one kind from the gateway.
func (c *Client) FetchSnapshot(ctx context.Context, kind domain.DataKind) (*domain.Snapshot, error) {
	path, ok := snapshotPath(kind)
	if !ok {
		return nil, fmt.Errorf("unsupported snapshot kind: %s", kind)
	}

	var snap domain.Snapshot
	if err := c.getJSON(ctx, path, nil, &snap); err != nil {
		return nil, err
	}
	snap.Kind = kind
	cleanConstituentCodes(&snap)

	c.log.Info().
		Str("kind", string(kind)).
		Str("update_date", snap.UpdateDate).
		Msg("Fetched snapshot from gateway")

	return &snap, nil
}

// cleanConstituentCodes strips suffixes and surrounding text from membership
// codes. Board feeds embed codes in mixed formats ("600519.SH", padded text);
// the graph keys stocks by the bare code.
func cleanConstituentCodes(snap *domain.Snapshot) {
	for i := range snap.Boards {
		cons := snap.Boards[i].Cons
		for j := range cons {
			if code := symbols.ExtractCode(cons[j].Code); code != "" {
				cons[j].Code = code
			}
		}
	}
}

func snapshotPath(kind domain.DataKind) (string, bool) {
	switch kind {
	case domain.KindBoardInfo:
		return "/api/v1/boards", true
	case domain.KindStockBasic:
		return "/api/v1/stocks", true
	case domain.KindTradeCalendar:
		return "/api/v1/calendar", true
	}
	return "", false
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.WrapE(domain.ErrSourceUnavailable, err, "gateway request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.E(domain.ErrNotFound, "gateway has no data at %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.E(domain.ErrSourceUnavailable, "gateway returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapE(domain.ErrSourceUnavailable, err, "failed to parse gateway response")
	}
	return nil
}
