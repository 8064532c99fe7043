package aggregate

import (
	"database/sql"
	"math"
	"strconv"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

// hardwareRowsFromWire converts the upstream hardware-nodes payload
// into the JSON-column store shape.
func hardwareRowsFromWire(epochID uint64, participantIndex string, nodes []upstream.HardwareNode) []store.HardwareNodeRow {
	rows := make([]store.HardwareNodeRow, 0, len(nodes))
	for _, n := range nodes {
		row := store.HardwareNodeRow{
			EpochID:          epochID,
			ParticipantIndex: participantIndex,
			LocalID:          n.LocalID,
			Status:           n.Status,
			ModelsJSON:       marshalOrEmptyArray(n.Models),
			HardwareJSON:     marshalOrEmptyArray(n.Hardware),
			Host:             n.Host,
			Port:             n.Port,
		}
		if n.PoCWeight != nil {
			row.PoCWeight = sql.NullInt64{Int64: *n.PoCWeight, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

// extractMLNodesMap flattens a participant's ml_nodes wrappers into a
// node_id -> poc_weight map, the join key used by hardware enrichment
// and model aggregation.
func extractMLNodesMap(wrappers []upstream.MLNodeWrapper) map[string]int64 {
	result := make(map[string]int64)
	for _, wrapper := range wrappers {
		for _, node := range wrapper.MLNodes {
			if node.NodeID == "" {
				continue
			}
			result[node.NodeID] = node.PoCWeight
		}
	}
	return result
}

// parseDecimal parses a non-negative decimal-string counter. It never
// errors to the caller: an unparseable string is treated as 0, since
// counters flowing through this path are validated upstream and a
// malformed value should degrade rates, not abort the response.
func parseDecimal(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// round4 rounds to 4 decimal places, per spec.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// computeRates derives missed_rate and invalidation_rate from the raw
// counters, both clamped to [0, 1] and defined as 0 on a zero
// denominator.
func computeRates(stats CurrentEpochStatsWire) (missedRate, invalidationRate float64) {
	missed := parseDecimal(stats.MissedRequests)
	inferenceCount := parseDecimal(stats.InferenceCount)
	invalidated := parseDecimal(stats.InvalidatedInferences)

	if denom := missed + inferenceCount; denom > 0 {
		missedRate = round4(missed / denom)
	}
	if inferenceCount > 0 {
		invalidationRate = round4(invalidated / inferenceCount)
	}
	missedRate = math.Min(math.Max(missedRate, 0), 1)
	invalidationRate = math.Min(math.Max(invalidationRate, 0), 1)
	return missedRate, invalidationRate
}

func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

// splitCSV is joinCSV's inverse, used when reconstructing ParticipantStats
// from a persisted StatsRow.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
