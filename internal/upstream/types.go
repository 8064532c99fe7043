package upstream

// Types mirror the JSON shapes returned by the upstream gonka node
// endpoints listed in the specification's external interfaces section.
// Field names follow the wire format (snake_case via json tags), not
// Go convention, since these structs are pure transport DTOs.

// BlockHeader is the subset of /cosmos/base/tendermint/v1beta1/blocks/latest
// this client needs.
type BlockHeader struct {
	Height    int64  `json:"height"`
	Timestamp string `json:"timestamp"`
}

type blocksLatestResponse struct {
	Block struct {
		Header struct {
			Height string `json:"height"`
			Time   string `json:"time"`
		} `json:"header"`
	} `json:"block"`
}

// SeedInfo is the seed bundle attached to an epoch participant.
type SeedInfo struct {
	Signature string `json:"signature"`
}

// MLNodeWrapper is the high-level `ml_nodes` entry keyed positionally
// against `models[]` for a participant.
type MLNodeWrapper struct {
	MLNodes []MLNodeEntry `json:"ml_nodes"`
}

// MLNodeEntry is one hardware node's weight contribution to a model.
type MLNodeEntry struct {
	NodeID    string `json:"node_id"`
	PoCWeight int64  `json:"poc_weight"`
}

// EpochParticipant is one entry in active_participants.participants.
type EpochParticipant struct {
	Index         string          `json:"index"`
	ValidatorKey  string          `json:"validator_key"`
	Weight        int64           `json:"weight"`
	InferenceURL  string          `json:"inference_url"`
	Models        []string        `json:"models"`
	MLNodes       []MLNodeWrapper `json:"ml_nodes"`
	Seed          SeedInfo        `json:"seed"`
}

// ActiveParticipants is the payload embedded under active_participants
// in both current_epoch_group and {id}/epoch_group responses.
type ActiveParticipants struct {
	EpochGroupID        uint64             `json:"epoch_group_id"`
	PoCStartBlockHeight int64              `json:"poc_start_block_height"`
	EffectiveBlockHeight int64             `json:"effective_block_height"`
	Participants        []EpochParticipant `json:"participants"`
}

// EpochGroup wraps ActiveParticipants, the shape of both
// current_epoch_group and {id}/epoch_group.
type EpochGroup struct {
	ActiveParticipants ActiveParticipants `json:"active_participants"`
}

// LatestEpochInfo is the /latest_epoch response.
type LatestEpochInfo struct {
	LatestEpoch struct {
		Index               uint64 `json:"index"`
		PoCStartBlockHeight int64  `json:"poc_start_block_height"`
	} `json:"latest_epoch"`
	EpochStages struct {
		NextPoCStart int64 `json:"next_poc_start"`
	} `json:"epoch_stages"`
	EpochParams struct {
		EpochLength int64 `json:"epoch_length"`
	} `json:"epoch_params"`
}

// CurrentEpochStatsWire is the raw per-participant counter block, kept
// as strings per the specification's unbounded-precision requirement.
type CurrentEpochStatsWire struct {
	InferenceCount        string `json:"inference_count"`
	MissedRequests        string `json:"missed_requests"`
	EarnedCoins           string `json:"earned_coins"`
	RewardedCoins         string `json:"rewarded_coins"`
	BurnedCoins           string `json:"burned_coins"`
	ValidatedInferences   string `json:"validated_inferences"`
	InvalidatedInferences string `json:"invalidated_inferences"`
}

// ParticipantWire is one entry in /participants?height=H.
type ParticipantWire struct {
	Index              string                `json:"index"`
	Address            string                `json:"address"`
	InferenceURL       string                `json:"inference_url"`
	Status             string                `json:"status"`
	CurrentEpochStats  CurrentEpochStatsWire `json:"current_epoch_stats"`
}

type participantsResponse struct {
	Participant []ParticipantWire `json:"participant"`
}

// ValidatorDescription holds the human-facing validator metadata.
type ValidatorDescription struct {
	Moniker  string `json:"moniker"`
	Identity string `json:"identity"`
	Website  string `json:"website"`
}

// ConsensusPubkey carries either `key` or `value` depending on the
// upstream's codec version; callers take the first non-empty.
type ConsensusPubkey struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Validator is one entry in /cosmos/staking/v1beta1/validators.
type Validator struct {
	OperatorAddress string                `json:"operator_address"`
	ConsensusPubkey ConsensusPubkey       `json:"consensus_pubkey"`
	Jailed          bool                  `json:"jailed"`
	Tokens          string                `json:"tokens"`
	Description     ValidatorDescription  `json:"description"`
}

type validatorsResponse struct {
	Validators []Validator `json:"validators"`
}

// SigningInfo is the /signing_infos/{valcons} payload.
type SigningInfo struct {
	JailedUntil string `json:"jailed_until"`
}

type signingInfoResponse struct {
	ValSigningInfo SigningInfo `json:"val_signing_info"`
}

// WarmKeyGrant is one authz grant returned for a granter address.
type WarmKeyGrant struct {
	GranteeAddress string `json:"grantee_address"`
	GrantedAt      string `json:"granted_at"`
}

type grantsResponse struct {
	Grants []struct {
		Grantee string `json:"grantee"`
		Granted string `json:"granted_at"`
	} `json:"grants"`
}

// PerformanceSummary is the epoch_performance_summary payload.
type PerformanceSummary struct {
	RewardedCoins string `json:"rewarded_coins"`
	Claimed       bool   `json:"claimed"`
}

type performanceSummaryResponse struct {
	EpochPerformanceSummary PerformanceSummary `json:"epochPerformanceSummary"`
}

// HardwareSpec is one {type,count} hardware line.
type HardwareSpec struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// HardwareNode is one entry in /hardware_nodes/{participant}.
type HardwareNode struct {
	LocalID   string         `json:"local_id"`
	Status    string         `json:"status"`
	Models    []string       `json:"models"`
	Hardware  []HardwareSpec `json:"hardware"`
	Host      string         `json:"host"`
	Port      string         `json:"port"`
	PoCWeight *int64         `json:"poc_weight"`
}

type hardwareNodesResponse struct {
	Nodes []HardwareNode `json:"nodes"`
}

// ModelDescriptor is one entry in /models.
type ModelDescriptor struct {
	ID                      string            `json:"id"`
	ProposedBy              string            `json:"proposed_by"`
	VRAM                    string            `json:"v_ram"`
	ThroughputPerNonce      string            `json:"throughput_per_nonce"`
	UnitsOfComputePerToken  string            `json:"units_of_compute_per_token"`
	HFRepo                  string            `json:"hf_repo"`
	HFCommit                string            `json:"hf_commit"`
	ModelArgs               []string          `json:"model_args"`
	ValidationThreshold     map[string]any    `json:"validation_threshold"`
}

type modelsResponse struct {
	Model []ModelDescriptor `json:"model"`
}

// ModelStat is one entry in /models_stats.
type ModelStat struct {
	Model      string `json:"model"`
	AITokens   string `json:"ai_tokens"`
	Inferences int64  `json:"inferences"`
}

type modelsStatsResponse struct {
	StatsModels []ModelStat `json:"stats_models"`
}

// RestrictionsParams is the /restrictions_params payload.
type RestrictionsParams struct {
	RestrictionEndBlock string `json:"restriction_end_block"`
}

type restrictionsParamsResponse struct {
	Params RestrictionsParams `json:"params"`
}

// BlockEnvelope is the full /blocks/{height} payload this client reads.
type BlockEnvelope struct {
	Result struct {
		Block struct {
			Header struct {
				Time string `json:"time"`
			} `json:"header"`
		} `json:"block"`
	} `json:"result"`
}

// InferenceWire is one inference record for a participant.
type InferenceWire struct {
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

// InferencesPage groups a participant's inferences by terminal status.
type InferencesPage struct {
	Successful  []InferenceWire `json:"successful"`
	Expired     []InferenceWire `json:"expired"`
	Invalidated []InferenceWire `json:"invalidated"`
}

// HealthResult is the outcome of a direct inference-endpoint probe.
// Never an error: an unreachable or empty URL simply yields
// IsHealthy=false with a populated ErrorMessage.
type HealthResult struct {
	IsHealthy       bool
	ErrorMessage    string
	ResponseTimeMs  *int64
}
