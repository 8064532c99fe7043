package upstream

import (
	"context"
	"net/http"
	"time"
)

// CheckNodeHealth probes a participant's own inference_url directly
// (bypassing the base-URL rotation, since this is about that
// participant's reachability, not the chain's). It never returns an
// error: every failure mode collapses into a HealthResult with
// IsHealthy=false.
func CheckNodeHealth(ctx context.Context, inferenceURL string, timeout time.Duration) HealthResult {
	if inferenceURL == "" {
		return HealthResult{IsHealthy: false, ErrorMessage: "No inference URL"}
	}

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inferenceURL+"/health", nil)
	if err != nil {
		return HealthResult{IsHealthy: false, ErrorMessage: err.Error()}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return HealthResult{IsHealthy: false, ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		return HealthResult{IsHealthy: false, ErrorMessage: msg, ResponseTimeMs: &elapsed}
	}

	return HealthResult{IsHealthy: true, ResponseTimeMs: &elapsed}
}
