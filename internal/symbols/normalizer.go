// Package symbols canonicalizes the ticker formats seen in upstream feeds.
//
// Accepted inputs for the same security: "000001", "000001.SZ", "SZ000001",
// "000001SZ" and lowercase variants. The canonical form is always the bare
// six-digit code; the venue is derived from the leading digit and never from
// a decorative exchange tag carried by the input.
package symbols

import (
	"regexp"
	"strings"

	"github.com/quantara/marketd/internal/domain"
)

// Exchange is a trading venue.
type Exchange string

const (
	ExchangeSH Exchange = "SH" // Shanghai
	ExchangeSZ Exchange = "SZ" // Shenzhen
	ExchangeBJ Exchange = "BJ" // Beijing
)

// StockCode is a canonical six-digit code plus its inferred venue.
type StockCode struct {
	Code     string
	Exchange Exchange
}

// SourceFormat renders the code the way fetch calls expect it: "000001.SZ".
func (c StockCode) SourceFormat() string {
	return c.Code + "." + string(c.Exchange)
}

func (c StockCode) String() string {
	return c.Code
}

var (
	dottedSuffixRe = regexp.MustCompile(`\.(SH|SZ|BJ)$`)
	bareSuffixRe   = regexp.MustCompile(`^(\d{6})(SH|SZ|BJ)$`)
	digitsRe       = regexp.MustCompile(`^\d{6}$`)
)

// Normalize strips decorative exchange tags and validates the six-digit
// residual. Normalizing an already-canonical code returns it unchanged.
func Normalize(raw string) (StockCode, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return StockCode{}, domain.E(domain.ErrInvalidCode, "empty stock code")
	}

	// Dotted suffix: 000001.SZ
	s = dottedSuffixRe.ReplaceAllString(s, "")

	// Prefix tag: SZ000001
	if strings.HasPrefix(s, "SH") || strings.HasPrefix(s, "SZ") || strings.HasPrefix(s, "BJ") {
		rest := s[2:]
		if !digitsRe.MatchString(rest) {
			return StockCode{}, domain.E(domain.ErrInvalidCode, "unsupported code format: %s", raw)
		}
		s = rest
	} else if m := bareSuffixRe.FindStringSubmatch(s); m != nil {
		// Bare suffix: 000001SZ
		s = m[1]
	}

	if !digitsRe.MatchString(s) {
		return StockCode{}, domain.E(domain.ErrInvalidCode, "unsupported code format: %s", raw)
	}

	exch, err := InferExchange(s)
	if err != nil {
		return StockCode{}, err
	}
	return StockCode{Code: s, Exchange: exch}, nil
}

// InferExchange maps a canonical code to its venue by leading digit.
// The rule is deterministic and ignores whatever tag the raw input carried:
// 6,5 -> SH; 0,3,1 -> SZ; 8,9,4 -> BJ.
func InferExchange(code string) (Exchange, error) {
	if !digitsRe.MatchString(code) {
		return "", domain.E(domain.ErrInvalidCode, "not a canonical six-digit code: %s", code)
	}
	switch code[0] {
	case '6', '5':
		return ExchangeSH, nil
	case '0', '3', '1':
		return ExchangeSZ, nil
	case '8', '9', '4':
		return ExchangeBJ, nil
	}
	return "", domain.E(domain.ErrInvalidCode, "cannot determine exchange for %s", code)
}

// SourceFormat normalizes raw and renders it in fetch format.
func SourceFormat(raw string) (string, error) {
	c, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return c.SourceFormat(), nil
}

// BatchResult carries one outcome of a batch normalization. Failed items
// keep their slot so callers can report per-item status.
type BatchResult struct {
	Raw  string
	Code StockCode
	Err  error
}

// NormalizeBatch normalizes codes preserving input order. When dedupe is
// set, later duplicates of an already-seen canonical code are dropped.
// A single malformed input never aborts the batch.
func NormalizeBatch(raws []string, dedupe bool) []BatchResult {
	results := make([]BatchResult, 0, len(raws))
	seen := make(map[string]bool, len(raws))

	for _, raw := range raws {
		code, err := Normalize(raw)
		if err != nil {
			results = append(results, BatchResult{Raw: raw, Err: err})
			continue
		}
		if dedupe {
			if seen[code.Code] {
				continue
			}
			seen[code.Code] = true
		}
		results = append(results, BatchResult{Raw: raw, Code: code})
	}
	return results
}

var digitRunRe = regexp.MustCompile(`\d+`)

// ExtractCode pulls the first digit run (clipped to six digits) out of a
// free-form string. Upstream membership rows sometimes embed codes in noisy
// text; this mirrors their cleanup rule. Returns "" when nothing matches.
func ExtractCode(s string) string {
	m := digitRunRe.FindString(strings.TrimSpace(s))
	if len(m) > 6 {
		m = m[:6]
	}
	return m
}
