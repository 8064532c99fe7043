// Package upstream is a stateless HTTP client for the gonka chain's
// read-only REST surface, with multi-URL rotation and failover, plus a
// handful of pure cryptographic/address helpers that never perform I/O.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gonka-ai/inferencecache/internal/aggregateerr"
	"github.com/gonka-ai/inferencecache/internal/circuitbreaker"
)

// Client rotates across an ordered list of base URLs. A successful
// call never advances the rotation index; any transport error or
// non-2xx response advances it and retries the next URL, up to one
// full cycle. A per-URL circuit breaker additionally skips a base URL
// that has tripped open, so one flaky node doesn't burn a retry slot
// on every call while it's down.
type Client struct {
	baseURLs      []string
	http          *http.Client
	idx           atomic.Uint32
	logger        *log.Logger
	healthTimeout time.Duration
	breakers      *circuitbreaker.UpstreamBreakers
}

// New builds a Client. requestTimeout bounds every non-health call;
// individual calls still carry the caller's context deadline if it is
// tighter. healthTimeout bounds CheckNodeHealth probes separately,
// since those hit participant-operated URLs rather than the
// configured rotation.
func New(baseURLs []string, requestTimeout, healthTimeout time.Duration) *Client {
	return &Client{
		baseURLs:      baseURLs,
		http:          &http.Client{Timeout: requestTimeout},
		logger:        log.New(log.Writer(), "[UPSTREAM] ", log.LstdFlags),
		healthTimeout: healthTimeout,
		breakers:      circuitbreaker.NewUpstreamBreakers(),
	}
}

// BreakerHealth reports the aggregate circuit breaker health across
// every configured upstream base URL.
func (c *Client) BreakerHealth() (string, map[string]string) {
	return c.breakers.HealthStatus()
}

// do performs method+path against the rotation, starting from the
// current index, trying at most len(baseURLs) distinct URLs. A URL
// whose breaker is open is skipped without sending a request, except
// the last URL of the cycle, which is always tried so that a call never
// fails without at least one request going out.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string) ([]byte, error) {
	n := len(c.baseURLs)
	if n == 0 {
		return nil, aggregateerr.New(aggregateerr.KindUpstreamUnavailable, "no upstream base URLs configured", nil)
	}

	start := c.idx.Load()
	var lastErr error
	for attempt := 0; attempt < n; attempt++ {
		i := (start + uint32(attempt)) % uint32(n)
		base := c.baseURLs[i]
		url := base + path

		if !c.breakers.Allow(base) && attempt < n-1 {
			c.logger.Printf("breaker open, skipping: %s", base)
			continue
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Printf("call failed, rotating: %s -> %v", url, err)
			c.breakers.Record(base, false)
			c.idx.Store((i + 1) % uint32(n))
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Printf("non-2xx, rotating: %s -> %d", url, resp.StatusCode)
			c.breakers.Record(base, false)
			c.idx.Store((i + 1) % uint32(n))
			lastErr = fmt.Errorf("status %d from %s", resp.StatusCode, url)
			continue
		}
		if readErr != nil {
			c.breakers.Record(base, false)
			lastErr = readErr
			c.idx.Store((i + 1) % uint32(n))
			continue
		}

		c.breakers.Record(base, true)
		// Success leaves the rotation index where it is.
		return body, nil
	}

	return nil, aggregateerr.New(aggregateerr.KindUpstreamUnavailable,
		fmt.Sprintf("all %d upstream URLs failed", n), lastErr)
}

func (c *Client) getJSON(ctx context.Context, path string, headers map[string]string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return aggregateerr.New(aggregateerr.KindCacheCorruption, "malformed upstream JSON for "+path, err)
	}
	return nil
}

// LatestBlock returns the chain tip.
func (c *Client) LatestBlock(ctx context.Context) (*BlockHeader, error) {
	var resp blocksLatestResponse
	if err := c.getJSON(ctx, "/cosmos/base/tendermint/v1beta1/blocks/latest", nil, &resp); err != nil {
		return nil, err
	}
	height, err := strconv.ParseInt(resp.Block.Header.Height, 10, 64)
	if err != nil {
		return nil, aggregateerr.New(aggregateerr.KindDataInvariantBroken, "non-numeric block height", err)
	}
	return &BlockHeader{Height: height, Timestamp: resp.Block.Header.Time}, nil
}

// LatestHeight is a convenience wrapper around LatestBlock.
func (c *Client) LatestHeight(ctx context.Context) (int64, error) {
	b, err := c.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	return b.Height, nil
}

// LatestEpoch returns the current epoch pointer and timing parameters.
func (c *Client) LatestEpoch(ctx context.Context) (*LatestEpochInfo, error) {
	var out LatestEpochInfo
	if err := c.getJSON(ctx, "/gonka/inference/v1/latest_epoch", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentEpochParticipants returns the active participant set for the
// epoch currently in progress.
func (c *Client) CurrentEpochParticipants(ctx context.Context) (*EpochGroup, error) {
	var out EpochGroup
	if err := c.getJSON(ctx, "/gonka/inference/v1/epochs/current_epoch_group", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EpochParticipants returns the active participant set for a specific
// epoch id (may be historical or, if not yet started, absent).
func (c *Client) EpochParticipants(ctx context.Context, epochID uint64) (*EpochGroup, error) {
	var out EpochGroup
	path := fmt.Sprintf("/gonka/inference/v1/epochs/%d/epoch_group", epochID)
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AllParticipants returns every registered participant's counters at
// the given height.
func (c *Client) AllParticipants(ctx context.Context, height int64) ([]ParticipantWire, error) {
	var out participantsResponse
	path := fmt.Sprintf("/gonka/inference/v1/participants?height=%d", height)
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Participant, nil
}

// Validators returns the staking validator set, optionally pinned to a
// historical height via the ABCI height header.
func (c *Client) Validators(ctx context.Context, height int64) ([]Validator, error) {
	var out validatorsResponse
	headers := map[string]string{}
	if height > 0 {
		headers["x-cosmos-block-height"] = strconv.FormatInt(height, 10)
	}
	if err := c.getJSON(ctx, "/cosmos/staking/v1beta1/validators?pagination.limit=500", headers, &out); err != nil {
		return nil, err
	}
	return out.Validators, nil
}

// SigningInfo returns the slashing-module signing info for a valcons address.
func (c *Client) SigningInfo(ctx context.Context, valcons string, height int64) (*SigningInfo, error) {
	var out signingInfoResponse
	headers := map[string]string{}
	if height > 0 {
		headers["x-cosmos-block-height"] = strconv.FormatInt(height, 10)
	}
	path := "/cosmos/slashing/v1beta1/signing_infos/" + valcons
	if err := c.getJSON(ctx, path, headers, &out); err != nil {
		return nil, err
	}
	return &out.ValSigningInfo, nil
}

// AuthzGrants returns the authz grants for which address is the granter.
func (c *Client) AuthzGrants(ctx context.Context, granter string) ([]WarmKeyGrant, error) {
	var out grantsResponse
	path := "/cosmos/authz/v1beta1/grants/granter/" + granter
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	grants := make([]WarmKeyGrant, 0, len(out.Grants))
	for _, g := range out.Grants {
		grants = append(grants, WarmKeyGrant{GranteeAddress: g.Grantee, GrantedAt: g.Granted})
	}
	return grants, nil
}

// EpochPerformanceSummary returns one participant's rewards summary
// for one epoch, optionally pinned to a height.
func (c *Client) EpochPerformanceSummary(ctx context.Context, epochID uint64, participant string, height int64) (*PerformanceSummary, error) {
	var out performanceSummaryResponse
	headers := map[string]string{}
	if height > 0 {
		headers["x-cosmos-block-height"] = strconv.FormatInt(height, 10)
	}
	path := fmt.Sprintf("/gonka/inference/v1/epoch_performance_summary/%d/%s", epochID, participant)
	if err := c.getJSON(ctx, path, headers, &out); err != nil {
		return nil, err
	}
	return &out.EpochPerformanceSummary, nil
}

// HardwareNodes returns a participant's registered hardware.
func (c *Client) HardwareNodes(ctx context.Context, participant string) ([]HardwareNode, error) {
	var out hardwareNodesResponse
	path := "/gonka/inference/v1/hardware_nodes/" + participant
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// Models returns the static model descriptor registry.
func (c *Client) Models(ctx context.Context) ([]ModelDescriptor, error) {
	var out modelsResponse
	if err := c.getJSON(ctx, "/gonka/inference/v1/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Model, nil
}

// ModelsStats returns live per-model inference counters.
func (c *Client) ModelsStats(ctx context.Context) ([]ModelStat, error) {
	var out modelsStatsResponse
	if err := c.getJSON(ctx, "/gonka/inference/v1/models_stats", nil, &out); err != nil {
		return nil, err
	}
	return out.StatsModels, nil
}

// RestrictionsParams returns the transfer-restriction parameters.
func (c *Client) RestrictionsParams(ctx context.Context) (*RestrictionsParams, error) {
	var out restrictionsParamsResponse
	if err := c.getJSON(ctx, "/gonka/inference/v1/restrictions_params", nil, &out); err != nil {
		return nil, err
	}
	return &out.Params, nil
}

// Block returns the full block envelope at a given height.
func (c *Client) Block(ctx context.Context, height int64) (*BlockEnvelope, error) {
	var out BlockEnvelope
	path := fmt.Sprintf("/blocks/%d", height)
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckNodeHealth probes a participant's inference endpoint directly,
// never returning an error.
func (c *Client) CheckNodeHealth(ctx context.Context, inferenceURL string) HealthResult {
	return CheckNodeHealth(ctx, inferenceURL, c.healthTimeout)
}

// Inferences returns a participant's inference records for an epoch,
// partitioned by terminal status.
func (c *Client) Inferences(ctx context.Context, epochID uint64, participant string) (*InferencesPage, error) {
	var out InferencesPage
	path := fmt.Sprintf("/gonka/inference/v1/epochs/%d/participants/%s/inferences", epochID, participant)
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
