package aggregate

import (
	"context"
	"time"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

// UpstreamClient is the subset of *upstream.Client the aggregation
// service calls. Defined at point of use so tests can substitute a
// fake without touching the real rotation/HTTP client.
type UpstreamClient interface {
	LatestHeight(ctx context.Context) (int64, error)
	LatestBlock(ctx context.Context) (*upstream.BlockHeader, error)
	LatestEpoch(ctx context.Context) (*upstream.LatestEpochInfo, error)
	CurrentEpochParticipants(ctx context.Context) (*upstream.EpochGroup, error)
	EpochParticipants(ctx context.Context, epochID uint64) (*upstream.EpochGroup, error)
	AllParticipants(ctx context.Context, height int64) ([]upstream.ParticipantWire, error)
	Validators(ctx context.Context, height int64) ([]upstream.Validator, error)
	SigningInfo(ctx context.Context, valcons string, height int64) (*upstream.SigningInfo, error)
	AuthzGrants(ctx context.Context, granter string) ([]upstream.WarmKeyGrant, error)
	EpochPerformanceSummary(ctx context.Context, epochID uint64, participant string, height int64) (*upstream.PerformanceSummary, error)
	HardwareNodes(ctx context.Context, participant string) ([]upstream.HardwareNode, error)
	Models(ctx context.Context) ([]upstream.ModelDescriptor, error)
	ModelsStats(ctx context.Context) ([]upstream.ModelStat, error)
	RestrictionsParams(ctx context.Context) (*upstream.RestrictionsParams, error)
	Block(ctx context.Context, height int64) (*upstream.BlockEnvelope, error)
	Inferences(ctx context.Context, epochID uint64, participant string) (*upstream.InferencesPage, error)
	CheckNodeHealth(ctx context.Context, inferenceURL string) upstream.HealthResult
	BreakerHealth() (status string, perURL map[string]string)
}

// CacheStore is the subset of *store.Store the aggregation service calls.
type CacheStore interface {
	UpsertStatsBatch(ctx context.Context, rows []store.StatsRow) error
	GetStats(ctx context.Context, epochID uint64, height int64) ([]store.StatsRow, bool, error)

	UpsertEpoch(ctx context.Context, e store.EpochRow) error
	GetEpoch(ctx context.Context, epochID uint64) (store.EpochRow, bool, error)
	MarkEpochFinished(ctx context.Context, epochID uint64) error

	UpsertJailBatch(ctx context.Context, rows []store.JailRow) error
	GetJailOverlay(ctx context.Context, epochID uint64) ([]store.JailRow, bool, error)

	UpsertNodeHealth(ctx context.Context, r store.HealthRow) error
	GetAllNodeHealth(ctx context.Context) ([]store.HealthRow, bool, error)

	UpsertReward(ctx context.Context, r store.RewardRow) error
	GetReward(ctx context.Context, epochID uint64, participantIndex string) (store.RewardRow, bool, error)

	UpsertEpochTotalRewards(ctx context.Context, r store.EpochTotalRewardsRow) error
	GetEpochTotalRewards(ctx context.Context, epochID uint64) (int64, bool, error)
	DeleteEpochTotalRewards(ctx context.Context, epochID uint64) error

	UpsertWarmKeys(ctx context.Context, epochID uint64, participantIndex string, keys []store.WarmKeyRow) error
	GetWarmKeys(ctx context.Context, epochID uint64, participantIndex string) ([]store.WarmKeyRow, bool, error)

	UpsertHardwareNodes(ctx context.Context, epochID uint64, participantIndex string, nodes []store.HardwareNodeRow) error
	GetHardwareNodes(ctx context.Context, epochID uint64, participantIndex string) ([]store.HardwareNodeRow, bool, error)

	UpsertModelsBatch(ctx context.Context, epochID uint64, rows []store.ModelAggregateRow) error
	GetModels(ctx context.Context, epochID uint64) ([]store.ModelAggregateRow, bool, error)

	UpsertInferences(ctx context.Context, epochID uint64, participantIndex string, rows []store.InferenceRow) error
	GetParticipantInferences(ctx context.Context, epochID uint64, participantIndex string) ([]store.InferenceRow, bool, error)

	UpsertTimeline(ctx context.Context, payloadJSON string) error
	GetTimeline(ctx context.Context) (payloadJSON string, fetchedAt time.Time, ok bool, err error)

	UpsertAPICache(ctx context.Context, table, key, payloadJSON string) error
	GetAPICache(ctx context.Context, table, key string) (payloadJSON string, ok bool, err error)
}
