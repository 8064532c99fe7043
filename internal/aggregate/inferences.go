package aggregate

import (
	"context"
	"encoding/json"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

// ParticipantInferences returns one participant's inferences for an
// epoch, bucketed by terminal status, with a three-valued cache:
// never-fetched triggers an inline fetch, fetched-empty returns empty
// slices rather than nil.
func (s *Service) ParticipantInferences(ctx context.Context, epochID uint64, participantID string) (*ParticipantInferencesResponse, error) {
	rows, ok, err := s.store.GetParticipantInferences(ctx, epochID, participantID)
	if err != nil {
		s.logger.Printf("failed to read cached inferences for %d/%s: %v", epochID, participantID, err)
	}
	if !ok {
		page, err := s.client.Inferences(ctx, epochID, participantID)
		if err != nil {
			return nil, err
		}
		rows = inferenceRowsFromPage(epochID, participantID, page)
		if err := s.store.UpsertInferences(ctx, epochID, participantID, rows); err != nil {
			s.logger.Printf("failed to persist inferences for %d/%s: %v", epochID, participantID, err)
		}
	}

	response := &ParticipantInferencesResponse{
		EpochID: epochID, Participant: participantID,
		Successful: []InferenceInfo{}, Expired: []InferenceInfo{}, Invalidated: []InferenceInfo{},
	}
	for _, r := range rows {
		info := inferenceInfoFromRow(r)
		switch r.Status {
		case "successful":
			response.Successful = append(response.Successful, info)
		case "expired":
			response.Expired = append(response.Expired, info)
		case "invalidated":
			response.Invalidated = append(response.Invalidated, info)
		}
	}
	return response, nil
}

func inferenceRowsFromPage(epochID uint64, participantID string, page *upstream.InferencesPage) []store.InferenceRow {
	var rows []store.InferenceRow
	appendAll := func(status string, wires []upstream.InferenceWire) {
		for _, w := range wires {
			rows = append(rows, store.InferenceRow{
				EpochID: epochID, ParticipantIndex: participantID,
				InferenceID: w.InferenceID, Status: status,
				StartBlockHeight: w.StartBlockHeight, StartBlockTimestamp: w.StartBlockTimestamp,
				ValidatedByJSON: marshalOrEmptyArray(w.ValidatedBy),
				PromptHash:      w.PromptHash, ResponseHash: w.ResponseHash,
				PromptPayload: w.PromptPayload, ResponsePayload: w.ResponsePayload,
				PromptTokenCount: w.PromptTokenCount, CompletionTokenCount: w.CompletionTokenCount,
				Model: w.Model,
			})
		}
	}
	appendAll("successful", page.Successful)
	appendAll("expired", page.Expired)
	appendAll("invalidated", page.Invalidated)
	return rows
}

func inferenceInfoFromRow(r store.InferenceRow) InferenceInfo {
	var validatedBy []string
	_ = json.Unmarshal([]byte(r.ValidatedByJSON), &validatedBy)
	return InferenceInfo{
		InferenceID: r.InferenceID, Status: r.Status,
		StartBlockHeight: r.StartBlockHeight, StartBlockTimestamp: r.StartBlockTimestamp,
		ValidatedBy: validatedBy, PromptHash: r.PromptHash, ResponseHash: r.ResponseHash,
		PromptPayload: r.PromptPayload, ResponsePayload: r.ResponsePayload,
		PromptTokenCount: r.PromptTokenCount, CompletionTokenCount: r.CompletionTokenCount,
		Model: r.Model,
	}
}
