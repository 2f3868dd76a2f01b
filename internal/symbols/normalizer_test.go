package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantara/marketd/internal/domain"
)

func TestNormalizeFormats(t *testing.T) {
	tests := []struct {
		input string
		code  string
		exch  Exchange
	}{
		{"000001", "000001", ExchangeSZ},
		{"000001.SZ", "000001", ExchangeSZ},
		{"SZ000001", "000001", ExchangeSZ},
		{"000001SZ", "000001", ExchangeSZ},
		{"sz000001", "000001", ExchangeSZ},
		{"000001sh", "000001", ExchangeSZ}, // decorative tag loses to digit rule
		{"600000", "600000", ExchangeSH},
		{"600000.SH", "600000", ExchangeSH},
		{"510300", "510300", ExchangeSH},
		{"300750", "300750", ExchangeSZ},
		{"830799", "830799", ExchangeBJ},
		{"430047", "430047", ExchangeBJ},
		{"  600519  ", "600519", ExchangeSH},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.code, got.Code, "input %q", tt.input)
		assert.Equal(t, tt.exch, got.Exchange, "input %q", tt.input)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"000001", "SH600000", "000001.SZ", "830799BJ"}
	for _, in := range inputs {
		first, err := Normalize(in)
		require.NoError(t, err)

		second, err := Normalize(first.Code)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestNormalizeDecorativeTagIgnored(t *testing.T) {
	// The raw input claims Shanghai, the digit rule says Shenzhen.
	// The digit rule wins.
	got, err := Normalize("SH000001")
	require.NoError(t, err)
	assert.Equal(t, "000001", got.Code)
	assert.Equal(t, ExchangeSZ, got.Exchange)
}

func TestNormalizeInvalid(t *testing.T) {
	for _, in := range []string{"", "ABC", "12345", "1234567", "SH12345", "SH1234567", "XX000001", "00000a"} {
		_, err := Normalize(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, domain.IsKind(err, domain.ErrInvalidCode), "input %q", in)
	}
}

func TestSourceFormat(t *testing.T) {
	out, err := SourceFormat("SH000001")
	require.NoError(t, err)
	assert.Equal(t, "000001.SZ", out)

	out, err = SourceFormat("600000")
	require.NoError(t, err)
	assert.Equal(t, "600000.SH", out)
}

func TestNormalizeBatchPreservesOrder(t *testing.T) {
	results := NormalizeBatch([]string{"600000", "bogus", "000001.SZ", "600000"}, false)
	require.Len(t, results, 4)

	assert.Equal(t, "600000", results[0].Code.Code)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "000001", results[2].Code.Code)
	assert.Equal(t, "600000", results[3].Code.Code) // no dedupe unless requested
}

func TestNormalizeBatchDedupe(t *testing.T) {
	results := NormalizeBatch([]string{"600000", "SH600000", "000001"}, true)
	require.Len(t, results, 2)
	assert.Equal(t, "600000", results[0].Code.Code)
	assert.Equal(t, "000001", results[1].Code.Code)
}

func TestExtractCode(t *testing.T) {
	assert.Equal(t, "600519", ExtractCode("600519.SH"))
	assert.Equal(t, "000001", ExtractCode("  000001 平安银行"))
	assert.Equal(t, "123456", ExtractCode("1234567890"))
	assert.Equal(t, "", ExtractCode("no digits"))
}
