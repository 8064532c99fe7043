package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// ==================== computeRates ====================

func TestComputeRates_NormalCase(t *testing.T) {
	stats := CurrentEpochStatsWire{
		InferenceCount:        "90",
		MissedRequests:        "10",
		InvalidatedInferences: "9",
	}
	missed, invalidated := computeRates(stats)
	require.Equal(t, 0.1, missed)
	require.Equal(t, 0.1, invalidated)
}

func TestComputeRates_ZeroDenominatorYieldsZero(t *testing.T) {
	stats := CurrentEpochStatsWire{}
	missed, invalidated := computeRates(stats)
	require.Equal(t, 0.0, missed)
	require.Equal(t, 0.0, invalidated)
}

func TestComputeRates_RoundsToFourDecimals(t *testing.T) {
	stats := CurrentEpochStatsWire{
		InferenceCount: "2",
		MissedRequests: "1",
	}
	missed, _ := computeRates(stats)
	require.Equal(t, 0.3333, missed) // 1/3 rounded to four decimals
}

func TestParseDecimal_InvalidInputReturnsZero(t *testing.T) {
	require.Equal(t, 0.0, parseDecimal("not-a-number"))
	require.Equal(t, 0.0, parseDecimal(""))
}

// ==================== CSV join/split round trip ====================

func TestJoinSplitCSV_RoundTrip(t *testing.T) {
	models := []string{"llama-3", "mistral-7b", "qwen2"}
	joined := joinCSV(models)
	require.Equal(t, "llama-3,mistral-7b,qwen2", joined)
	require.Equal(t, models, splitCSV(joined))
}

func TestSplitCSV_Empty(t *testing.T) {
	require.Nil(t, splitCSV(""))
}

func TestJoinCSV_Empty(t *testing.T) {
	require.Equal(t, "", joinCSV(nil))
}
