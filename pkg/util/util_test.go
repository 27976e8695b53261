package util

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDayLayout(t *testing.T) {
	got, ok := ParseDay("2024-03-15")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDayRFC3339Truncates(t *testing.T) {
	got, ok := ParseDay("2024-03-15T18:30:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDayUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseDay(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDayRejectsGarbage(t *testing.T) {
	_, ok := ParseDay("not-a-date")
	assert.False(t, ok)
	_, ok = ParseDay("")
	assert.False(t, ok)
}

func TestSplitSymbols(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, SplitSymbols(" aapl, MSFT,,AAPL "))
	assert.Empty(t, SplitSymbols(""))
}

func TestValidSymbol(t *testing.T) {
	for _, s := range []string{"AAPL", "BRK-B", "^GSPC", "EURUSD=X", "RDS.A"} {
		assert.True(t, ValidSymbol(s), s)
	}
	for _, s := range []string{"", "AA PL", "AAPL;DROP", strings.Repeat("A", MaxSymbolLen+1)} {
		assert.False(t, ValidSymbol(s), s)
	}
}
