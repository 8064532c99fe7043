package aggregate

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gonka-ai/inferencecache/internal/aggregateerr"
)

const currentEpochTTL = 300 * time.Second

// Service is the aggregation and caching engine. Its only mutable
// state of its own is the publish-style current-epoch cache and the
// last-observed current epoch id; everything else is read through
// store on every call.
type Service struct {
	client UpstreamClient
	store  CacheStore
	logger *log.Logger

	currentEpochCache atomic.Pointer[currentEpochCache]
	// currentEpochID tracks the last epoch id this service observed as
	// current, to detect transitions the way the teacher's in-process
	// state fields track a single last-known value.
	currentEpochID atomic.Uint64
	haveSeenEpoch  atomic.Bool

	// redis is an optional cross-instance backing for the current-epoch
	// cache; nil means every instance relies solely on its own in-process
	// atomic.Pointer cache. Wired by SetRedisCache, never required.
	redis *redis.Client
}

// SetRedisCache wires an optional Redis-backed current-epoch cache
// alongside the in-process publish-style cache, so multiple instances
// of this service share one warm cache instead of each polling
// upstream independently. Reads consult the in-process cache first and
// Redis only when that misses; a Redis miss or error is treated like an
// absent Redis — it is optional infrastructure here, not a hard
// dependency.
func (s *Service) SetRedisCache(client *redis.Client) {
	s.redis = client
}

// New builds a Service over the given upstream client and cache store.
func New(client UpstreamClient, st CacheStore) *Service {
	return &Service{
		client: client,
		store:  st,
		logger: log.New(log.Writer(), "[AGGREGATE] ", log.LstdFlags),
	}
}

// CanonicalHeight resolves the single observation height for epoch_id,
// per the five-step rule: current epochs read at requestedHeight (or
// chain tip); historical epochs clamp to ten blocks before the next
// epoch's effective start, so late writes never corrupt the snapshot.
func (s *Service) CanonicalHeight(ctx context.Context, epochID uint64, requestedHeight *int64) (int64, error) {
	latest, err := s.client.LatestEpoch(ctx)
	if err != nil {
		return 0, err
	}
	currentEpochID := latest.LatestEpoch.Index

	if epochID == currentEpochID {
		if requestedHeight != nil {
			return *requestedHeight, nil
		}
		return s.client.LatestHeight(ctx)
	}

	epochData, err := s.client.EpochParticipants(ctx, epochID)
	if err != nil {
		return 0, err
	}
	effectiveHeight := epochData.ActiveParticipants.EffectiveBlockHeight

	var canonicalHeight int64
	nextEpochData, err := s.client.EpochParticipants(ctx, epochID+1)
	if err == nil && nextEpochData.ActiveParticipants.EffectiveBlockHeight > 0 {
		canonicalHeight = nextEpochData.ActiveParticipants.EffectiveBlockHeight - 10
	} else {
		canonicalHeight = latest.EpochStages.NextPoCStart - 10
	}

	if requestedHeight == nil {
		return canonicalHeight, nil
	}

	if *requestedHeight < effectiveHeight {
		return 0, aggregateerr.New(aggregateerr.KindInvalidHeight,
			fmt.Sprintf("height %d is before epoch %d start (effective height %d)", *requestedHeight, epochID, effectiveHeight), nil)
	}

	if *requestedHeight >= canonicalHeight {
		s.logger.Printf("height %d is after epoch %d end, clamping to canonical height %d", *requestedHeight, epochID, canonicalHeight)
		return canonicalHeight, nil
	}

	return *requestedHeight, nil
}

// UpstreamHealth reports the circuit breaker health of every configured
// upstream base URL, for the API's health endpoint.
func (s *Service) UpstreamHealth() (string, map[string]string) {
	return s.client.BreakerHealth()
}

func ptr[T any](v T) *T { return &v }
