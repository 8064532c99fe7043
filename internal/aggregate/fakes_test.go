package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

// fakeUpstream is a minimal in-memory UpstreamClient, letting tests
// script canned responses per method without any HTTP round-trip.
type fakeUpstream struct {
	mu sync.Mutex

	latestHeight int64
	latestBlock  *upstream.BlockHeader
	latestEpoch  *upstream.LatestEpochInfo
	epochGroups  map[uint64]*upstream.EpochGroup
	currentGroup *upstream.EpochGroup
	participants []upstream.ParticipantWire
	validators   []upstream.Validator
	signingInfo  map[string]*upstream.SigningInfo
	grants       map[string][]upstream.WarmKeyGrant
	summaries    map[string]*upstream.PerformanceSummary
	hardware     map[string][]upstream.HardwareNode
	models       []upstream.ModelDescriptor
	modelsStats  []upstream.ModelStat
	restrictions *upstream.RestrictionsParams
	blocks       map[int64]*upstream.BlockEnvelope
	inferences   map[string]*upstream.InferencesPage
	health       upstream.HealthResult

	errOnLatestHeight    error
	errOnCurrentGroup    error
	errOnAllParticipants error
	errOnModels          error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		epochGroups: make(map[uint64]*upstream.EpochGroup),
		signingInfo: make(map[string]*upstream.SigningInfo),
		grants:      make(map[string][]upstream.WarmKeyGrant),
		summaries:   make(map[string]*upstream.PerformanceSummary),
		hardware:    make(map[string][]upstream.HardwareNode),
		blocks:      make(map[int64]*upstream.BlockEnvelope),
		inferences:  make(map[string]*upstream.InferencesPage),
	}
}

func (f *fakeUpstream) LatestHeight(ctx context.Context) (int64, error) {
	if f.errOnLatestHeight != nil {
		return 0, f.errOnLatestHeight
	}
	return f.latestHeight, nil
}

func (f *fakeUpstream) LatestBlock(ctx context.Context) (*upstream.BlockHeader, error) {
	return f.latestBlock, nil
}

func (f *fakeUpstream) LatestEpoch(ctx context.Context) (*upstream.LatestEpochInfo, error) {
	return f.latestEpoch, nil
}

func (f *fakeUpstream) CurrentEpochParticipants(ctx context.Context) (*upstream.EpochGroup, error) {
	if f.errOnCurrentGroup != nil {
		return nil, f.errOnCurrentGroup
	}
	return f.currentGroup, nil
}

func (f *fakeUpstream) EpochParticipants(ctx context.Context, epochID uint64) (*upstream.EpochGroup, error) {
	g, ok := f.epochGroups[epochID]
	if !ok {
		return &upstream.EpochGroup{}, nil
	}
	return g, nil
}

func (f *fakeUpstream) AllParticipants(ctx context.Context, height int64) ([]upstream.ParticipantWire, error) {
	if f.errOnAllParticipants != nil {
		return nil, f.errOnAllParticipants
	}
	return f.participants, nil
}

func (f *fakeUpstream) Validators(ctx context.Context, height int64) ([]upstream.Validator, error) {
	return f.validators, nil
}

func (f *fakeUpstream) SigningInfo(ctx context.Context, valcons string, height int64) (*upstream.SigningInfo, error) {
	if si, ok := f.signingInfo[valcons]; ok {
		return si, nil
	}
	return &upstream.SigningInfo{}, nil
}

func (f *fakeUpstream) AuthzGrants(ctx context.Context, granter string) ([]upstream.WarmKeyGrant, error) {
	return f.grants[granter], nil
}

func (f *fakeUpstream) EpochPerformanceSummary(ctx context.Context, epochID uint64, participant string, height int64) (*upstream.PerformanceSummary, error) {
	key := participant
	if s, ok := f.summaries[key]; ok {
		return s, nil
	}
	return &upstream.PerformanceSummary{RewardedCoins: "0"}, nil
}

func (f *fakeUpstream) HardwareNodes(ctx context.Context, participant string) ([]upstream.HardwareNode, error) {
	return f.hardware[participant], nil
}

func (f *fakeUpstream) Models(ctx context.Context) ([]upstream.ModelDescriptor, error) {
	if f.errOnModels != nil {
		return nil, f.errOnModels
	}
	return f.models, nil
}

func (f *fakeUpstream) ModelsStats(ctx context.Context) ([]upstream.ModelStat, error) {
	return f.modelsStats, nil
}

func (f *fakeUpstream) RestrictionsParams(ctx context.Context) (*upstream.RestrictionsParams, error) {
	return f.restrictions, nil
}

func (f *fakeUpstream) Block(ctx context.Context, height int64) (*upstream.BlockEnvelope, error) {
	if b, ok := f.blocks[height]; ok {
		return b, nil
	}
	return &upstream.BlockEnvelope{}, nil
}

func (f *fakeUpstream) Inferences(ctx context.Context, epochID uint64, participant string) (*upstream.InferencesPage, error) {
	if p, ok := f.inferences[participant]; ok {
		return p, nil
	}
	return &upstream.InferencesPage{}, nil
}

func (f *fakeUpstream) CheckNodeHealth(ctx context.Context, inferenceURL string) upstream.HealthResult {
	return f.health
}

func (f *fakeUpstream) BreakerHealth() (string, map[string]string) {
	return "HEALTHY", nil
}

// fakeStore is a minimal in-memory CacheStore.
type fakeStore struct {
	mu sync.Mutex

	stats         map[string][]store.StatsRow
	epochs        map[uint64]store.EpochRow
	jail          map[uint64][]store.JailRow
	health        []store.HealthRow
	haveHealth    bool
	rewards       map[string]store.RewardRow
	totalRewards  map[uint64]int64
	warmKeys      map[string][]store.WarmKeyRow
	hardwareNodes map[string][]store.HardwareNodeRow
	models        map[uint64][]store.ModelAggregateRow
	inferences    map[string][]store.InferenceRow
	timeline      string
	timelineAt    time.Time
	haveTimeline  bool
	apiCache      map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stats:         make(map[string][]store.StatsRow),
		epochs:        make(map[uint64]store.EpochRow),
		jail:          make(map[uint64][]store.JailRow),
		rewards:       make(map[string]store.RewardRow),
		totalRewards:  make(map[uint64]int64),
		warmKeys:      make(map[string][]store.WarmKeyRow),
		hardwareNodes: make(map[string][]store.HardwareNodeRow),
		models:        make(map[uint64][]store.ModelAggregateRow),
		inferences:    make(map[string][]store.InferenceRow),
		apiCache:      make(map[string]string),
	}
}

func statsKey(epochID uint64, height int64) string {
	return itoa(int64(epochID)) + "/" + itoa(height)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (f *fakeStore) UpsertStatsBatch(ctx context.Context, rows []store.StatsRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}
	key := statsKey(rows[0].EpochID, rows[0].Height)
	f.stats[key] = rows
	return nil
}

func (f *fakeStore) GetStats(ctx context.Context, epochID uint64, height int64) ([]store.StatsRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.stats[statsKey(epochID, height)]
	return rows, ok, nil
}

func (f *fakeStore) UpsertEpoch(ctx context.Context, e store.EpochRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.epochs[e.EpochID]; ok {
		e.Finished = existing.Finished || e.Finished
	}
	f.epochs[e.EpochID] = e
	return nil
}

func (f *fakeStore) GetEpoch(ctx context.Context, epochID uint64) (store.EpochRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.epochs[epochID]
	return e, ok, nil
}

func (f *fakeStore) MarkEpochFinished(ctx context.Context, epochID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.epochs[epochID]
	e.EpochID = epochID
	e.Finished = true
	f.epochs[epochID] = e
	return nil
}

func (f *fakeStore) UpsertJailBatch(ctx context.Context, rows []store.JailRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}
	f.jail[rows[0].EpochID] = rows
	return nil
}

func (f *fakeStore) GetJailOverlay(ctx context.Context, epochID uint64) ([]store.JailRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.jail[epochID]
	return rows, ok, nil
}

func (f *fakeStore) UpsertNodeHealth(ctx context.Context, r store.HealthRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health = append(f.health, r)
	f.haveHealth = true
	return nil
}

func (f *fakeStore) GetAllNodeHealth(ctx context.Context) ([]store.HealthRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health, f.haveHealth, nil
}

func (f *fakeStore) UpsertReward(ctx context.Context, r store.RewardRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewards[itoa(int64(r.EpochID))+"/"+r.ParticipantIndex] = r
	return nil
}

func (f *fakeStore) GetReward(ctx context.Context, epochID uint64, participantIndex string) (store.RewardRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rewards[itoa(int64(epochID))+"/"+participantIndex]
	return r, ok, nil
}

func (f *fakeStore) UpsertEpochTotalRewards(ctx context.Context, r store.EpochTotalRewardsRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalRewards[r.EpochID] = r.TotalRewardsGnk
	return nil
}

func (f *fakeStore) GetEpochTotalRewards(ctx context.Context, epochID uint64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.totalRewards[epochID]
	return v, ok, nil
}

func (f *fakeStore) DeleteEpochTotalRewards(ctx context.Context, epochID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.totalRewards, epochID)
	return nil
}

func (f *fakeStore) UpsertWarmKeys(ctx context.Context, epochID uint64, participantIndex string, keys []store.WarmKeyRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warmKeys[itoa(int64(epochID))+"/"+participantIndex] = keys
	return nil
}

func (f *fakeStore) GetWarmKeys(ctx context.Context, epochID uint64, participantIndex string) ([]store.WarmKeyRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.warmKeys[itoa(int64(epochID))+"/"+participantIndex]
	return rows, ok, nil
}

func (f *fakeStore) UpsertHardwareNodes(ctx context.Context, epochID uint64, participantIndex string, nodes []store.HardwareNodeRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hardwareNodes[itoa(int64(epochID))+"/"+participantIndex] = nodes
	return nil
}

func (f *fakeStore) GetHardwareNodes(ctx context.Context, epochID uint64, participantIndex string) ([]store.HardwareNodeRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.hardwareNodes[itoa(int64(epochID))+"/"+participantIndex]
	return rows, ok, nil
}

func (f *fakeStore) UpsertModelsBatch(ctx context.Context, epochID uint64, rows []store.ModelAggregateRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[epochID] = rows
	return nil
}

func (f *fakeStore) GetModels(ctx context.Context, epochID uint64) ([]store.ModelAggregateRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.models[epochID]
	return rows, ok, nil
}

func (f *fakeStore) UpsertInferences(ctx context.Context, epochID uint64, participantIndex string, rows []store.InferenceRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inferences[itoa(int64(epochID))+"/"+participantIndex] = rows
	return nil
}

func (f *fakeStore) GetParticipantInferences(ctx context.Context, epochID uint64, participantIndex string) ([]store.InferenceRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.inferences[itoa(int64(epochID))+"/"+participantIndex]
	return rows, ok, nil
}

func (f *fakeStore) UpsertTimeline(ctx context.Context, payloadJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeline = payloadJSON
	f.timelineAt = time.Now()
	f.haveTimeline = true
	return nil
}

func (f *fakeStore) GetTimeline(ctx context.Context) (string, time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeline, f.timelineAt, f.haveTimeline, nil
}

func (f *fakeStore) UpsertAPICache(ctx context.Context, table, key, payloadJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiCache[table+"/"+key] = payloadJSON
	return nil
}

func (f *fakeStore) GetAPICache(ctx context.Context, table, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.apiCache[table+"/"+key]
	return payload, ok, nil
}
