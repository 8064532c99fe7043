// Package aggregate is the aggregation and caching engine: canonical-
// height resolution, multi-endpoint fan-out and join, jail/health
// overlay merge, per-participant detail assembly, and model
// aggregation, fed by internal/upstream and backed by internal/store.
package aggregate

import "time"

// CurrentEpochStatsWire carries the per-participant counters exactly
// as returned upstream — decimal strings, unbounded precision.
type CurrentEpochStatsWire struct {
	InferenceCount        string `json:"inference_count"`
	MissedRequests        string `json:"missed_requests"`
	EarnedCoins           string `json:"earned_coins"`
	RewardedCoins         string `json:"rewarded_coins"`
	BurnedCoins           string `json:"burned_coins"`
	ValidatedInferences   string `json:"validated_inferences"`
	InvalidatedInferences string `json:"invalidated_inferences"`
}

// ParticipantStats is one participant's fused view: chain counters
// plus epoch membership plus jail/health overlay fields.
type ParticipantStats struct {
	Index        string   `json:"index"`
	Address      string   `json:"address"`
	Weight       int64    `json:"weight"`
	ValidatorKey string   `json:"validator_key,omitempty"`
	InferenceURL string   `json:"inference_url"`
	Status       string   `json:"status"`
	Models       []string `json:"models"`

	CurrentEpochStats CurrentEpochStatsWire `json:"current_epoch_stats"`
	MissedRate         float64 `json:"missed_rate"`
	InvalidationRate   float64 `json:"invalidation_rate"`

	// Jail overlay, nil fields when never merged.
	IsJailed              *bool   `json:"is_jailed,omitempty"`
	JailedUntil           *string `json:"jailed_until,omitempty"`
	ReadyToUnjail         *bool   `json:"ready_to_unjail,omitempty"`
	Moniker               *string `json:"moniker,omitempty"`
	Identity              *string `json:"identity,omitempty"`
	KeybaseUsername       *string `json:"keybase_username,omitempty"`
	KeybasePictureURL     *string `json:"keybase_picture_url,omitempty"`
	Website               *string `json:"website,omitempty"`
	ValidatorConsensusKey *string `json:"validator_consensus_key,omitempty"`
	ConsensusKeyMismatch  *bool   `json:"consensus_key_mismatch,omitempty"`

	// Health overlay.
	NodeHealthy        *bool      `json:"node_healthy,omitempty"`
	NodeHealthCheckedAt *time.Time `json:"node_health_checked_at,omitempty"`

	// Internal join keys, not serialized: feed seed/ml-node lookups
	// without a second upstream round-trip.
	seedSignature string
	mlNodesMap    map[string]int64
}

// InferenceResponse is the top-level current/historical epoch view.
type InferenceResponse struct {
	EpochID                   uint64             `json:"epoch_id"`
	Height                    int64              `json:"height"`
	Participants              []ParticipantStats `json:"participants"`
	CachedAt                  string             `json:"cached_at"`
	IsCurrent                 bool               `json:"is_current"`
	TotalAssignedRewardsGnk   *int64             `json:"total_assigned_rewards_gnk,omitempty"`
}

// RewardInfo is one epoch's reward line in a participant's detail view.
type RewardInfo struct {
	EpochID            uint64 `json:"epoch_id"`
	AssignedRewardGnk  int64  `json:"assigned_reward_gnk"`
	Claimed            bool   `json:"claimed"`
}

// SeedInfo is the participant's epoch seed bundle.
type SeedInfo struct {
	Participant string `json:"participant"`
	EpochIndex  uint64 `json:"epoch_index"`
	Signature   string `json:"signature"`
}

// WarmKeyInfo is one authz grant in a participant's detail view.
type WarmKeyInfo struct {
	GranteeAddress string `json:"grantee_address"`
	GrantedAt      string `json:"granted_at"`
}

// HardwareInfo is one {type, count} hardware line.
type HardwareInfo struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// MLNodeInfo is one hardware node enriched with its PoC weight.
type MLNodeInfo struct {
	LocalID   string         `json:"local_id"`
	Status    string         `json:"status"`
	Models    []string       `json:"models"`
	Hardware  []HardwareInfo `json:"hardware"`
	Host      string         `json:"host"`
	Port      string         `json:"port"`
	PoCWeight *int64         `json:"poc_weight,omitempty"`
}

// ParticipantDetailsResponse is the full per-participant detail bundle.
type ParticipantDetailsResponse struct {
	Participant ParticipantStats `json:"participant"`
	Rewards     []RewardInfo     `json:"rewards"`
	Seed        *SeedInfo        `json:"seed,omitempty"`
	WarmKeys    []WarmKeyInfo    `json:"warm_keys"`
	MLNodes     []MLNodeInfo     `json:"ml_nodes"`
}

// BlockInfo is a minimal block reference used by the timeline.
type BlockInfo struct {
	Height    int64  `json:"height"`
	Timestamp string `json:"timestamp"`
}

// TimelineEvent is one scheduled or occurred chain milestone.
type TimelineEvent struct {
	BlockHeight int64  `json:"block_height"`
	Description string `json:"description"`
	Occurred    bool   `json:"occurred"`
}

// TimelineResponse describes the chain's recent pacing and upcoming events.
type TimelineResponse struct {
	CurrentBlock       BlockInfo       `json:"current_block"`
	ReferenceBlock     BlockInfo       `json:"reference_block"`
	AvgBlockTime       float64         `json:"avg_block_time"`
	Events             []TimelineEvent `json:"events"`
	CurrentEpochStart  int64           `json:"current_epoch_start"`
	CurrentEpochIndex  uint64          `json:"current_epoch_index"`
	EpochLength        int64           `json:"epoch_length"`
}

// ModelInfo is one model's aggregated weight plus its static descriptor.
type ModelInfo struct {
	ID                     string            `json:"id"`
	TotalWeight            int64             `json:"total_weight"`
	ParticipantCount       int64             `json:"participant_count"`
	ProposedBy             string            `json:"proposed_by"`
	VRAM                   string            `json:"v_ram"`
	ThroughputPerNonce     string            `json:"throughput_per_nonce"`
	UnitsOfComputePerToken string            `json:"units_of_compute_per_token"`
	HFRepo                 string            `json:"hf_repo"`
	HFCommit               string            `json:"hf_commit"`
	ModelArgs              []string          `json:"model_args"`
	ValidationThreshold    map[string]any    `json:"validation_threshold"`
}

// ModelStats is one model's live inference counters.
type ModelStats struct {
	Model      string `json:"model"`
	AITokens   string `json:"ai_tokens"`
	Inferences int64  `json:"inferences"`
}

// ModelsResponse is the top-level models view for an epoch.
type ModelsResponse struct {
	EpochID   uint64       `json:"epoch_id"`
	Height    int64        `json:"height"`
	Models    []ModelInfo  `json:"models"`
	Stats     []ModelStats `json:"stats"`
	CachedAt  string       `json:"cached_at"`
	IsCurrent bool         `json:"is_current"`
}

// ModelAggregate is the persisted per-epoch model weight summary.
type ModelAggregate struct {
	ModelID          string
	TotalWeight      int64
	ParticipantCount int64
}

// ParticipantInferencesResponse is one participant's inference history
// for an epoch, partitioned by terminal status.
type ParticipantInferencesResponse struct {
	EpochID     uint64          `json:"epoch_id"`
	Participant string          `json:"participant"`
	Successful  []InferenceInfo `json:"successful"`
	Expired     []InferenceInfo `json:"expired"`
	Invalidated []InferenceInfo `json:"invalidated"`
}

// InferenceInfo is one inference record in a participant's history.
type InferenceInfo struct {
	InferenceID          string   `json:"inference_id"`
	Status               string   `json:"status"`
	StartBlockHeight     string   `json:"start_block_height"`
	StartBlockTimestamp  string   `json:"start_block_timestamp"`
	ValidatedBy          []string `json:"validated_by"`
	PromptHash           string   `json:"prompt_hash"`
	ResponseHash         string   `json:"response_hash"`
	PromptPayload        string   `json:"prompt_payload"`
	ResponsePayload      string   `json:"response_payload"`
	PromptTokenCount     string   `json:"prompt_token_count"`
	CompletionTokenCount string   `json:"completion_token_count"`
	Model                string   `json:"model"`
}

// currentEpochCache is the publish-style snapshot backing the 300s
// TTL current-epoch cache. Replaced whole-object on every refresh —
// readers Load() it without holding any lock across a suspension
// point.
type currentEpochCache struct {
	response  *InferenceResponse
	epochID   uint64
	fetchedAt time.Time
}
