package aggregate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCurrentEpochKey is the single key the optional Redis layer uses
// to share the current-epoch response across instances, mirroring the
// one-slot semantics of the in-process currentEpochCache.
const redisCurrentEpochKey = "inferencecache:current_epoch"

type redisCurrentEpochPayload struct {
	Response  *InferenceResponse `json:"response"`
	EpochID   uint64             `json:"epoch_id"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// redisLoadCurrentEpoch consults the optional Redis cache for a
// current-epoch response fresher than currentEpochTTL. A nil client, a
// miss, or any Redis error all resolve to ok=false so callers carry on
// as if no Redis were configured, without surfacing Redis as a hard
// dependency.
func (s *Service) redisLoadCurrentEpoch(ctx context.Context) (resp *InferenceResponse, epochID uint64, fetchedAt time.Time, ok bool) {
	if s.redis == nil {
		return nil, 0, time.Time{}, false
	}

	raw, err := s.redis.Get(ctx, redisCurrentEpochKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Printf("redis current-epoch read failed: %v", err)
		}
		return nil, 0, time.Time{}, false
	}

	var payload redisCurrentEpochPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Printf("redis current-epoch payload corrupt: %v", err)
		return nil, 0, time.Time{}, false
	}

	if time.Since(payload.FetchedAt) >= currentEpochTTL {
		return nil, 0, time.Time{}, false
	}

	return payload.Response, payload.EpochID, payload.FetchedAt, true
}

// redisStoreCurrentEpoch publishes a freshly fetched current-epoch
// response to the optional Redis cache, with an expiry past the TTL
// window so a stale entry never outlives the freshness check above.
func (s *Service) redisStoreCurrentEpoch(ctx context.Context, resp *InferenceResponse, epochID uint64, fetchedAt time.Time) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(redisCurrentEpochPayload{Response: resp, EpochID: epochID, FetchedAt: fetchedAt})
	if err != nil {
		s.logger.Printf("failed to marshal current-epoch payload for redis: %v", err)
		return
	}

	if err := s.redis.Set(ctx, redisCurrentEpochKey, payload, 2*currentEpochTTL).Err(); err != nil {
		s.logger.Printf("redis current-epoch write failed: %v", err)
	}
}
