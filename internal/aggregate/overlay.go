package aggregate

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

// mergeJailAndHealth overlays cached jail and health rows onto each
// participant, inline-fetching either overlay the first time it is
// requested for a given key. Missing overlays leave the corresponding
// fields nil rather than erroring.
func (s *Service) mergeJailAndHealth(ctx context.Context, epochID uint64, participants []ParticipantStats, height int64, active []upstream.EpochParticipant) []ParticipantStats {
	jailRows, ok, err := s.store.GetJailOverlay(ctx, epochID)
	if err != nil {
		s.logger.Printf("failed to read jail overlay for epoch %d: %v", epochID, err)
	}
	if !ok {
		s.logger.Printf("no cached jail status for epoch %d, fetching inline", epochID)
		if err := s.computeJailOverlay(ctx, epochID, height, active); err != nil {
			s.logger.Printf("inline jail overlay fetch failed for epoch %d: %v", epochID, err)
		}
		jailRows, _, _ = s.store.GetJailOverlay(ctx, epochID)
	}
	jailMap := make(map[string]store.JailRow, len(jailRows))
	for _, j := range jailRows {
		jailMap[j.ParticipantIndex] = j
	}

	healthRows, ok, err := s.store.GetAllNodeHealth(ctx)
	if err != nil {
		s.logger.Printf("failed to read node health: %v", err)
	}
	if !ok {
		s.logger.Printf("no cached health statuses, fetching inline")
		s.fetchAndCacheNodeHealth(ctx, active)
		healthRows, _, _ = s.store.GetAllNodeHealth(ctx)
	}
	healthMap := make(map[string]store.HealthRow, len(healthRows))
	for _, h := range healthRows {
		healthMap[h.ParticipantIndex] = h
	}

	for i := range participants {
		p := &participants[i]
		if j, ok := jailMap[p.Index]; ok {
			applyJailRow(p, j)
		}
		if h, ok := healthMap[p.Index]; ok {
			p.NodeHealthy = boolPtr(h.IsHealthy)
			lastCheck := h.LastCheck
			p.NodeHealthCheckedAt = &lastCheck
		}
	}

	return participants
}

// mergeCachedOverlaysOnly overlays whatever jail/health rows are
// already cached without attempting an inline fetch — used when the
// participant list itself came from a cached stats row and so no
// active-participant list is available to recompute overlays from
// scratch.
func (s *Service) mergeCachedOverlaysOnly(ctx context.Context, epochID uint64, participants []ParticipantStats) []ParticipantStats {
	jailRows, _, err := s.store.GetJailOverlay(ctx, epochID)
	if err != nil {
		s.logger.Printf("failed to read jail overlay for epoch %d: %v", epochID, err)
	}
	jailMap := make(map[string]store.JailRow, len(jailRows))
	for _, j := range jailRows {
		jailMap[j.ParticipantIndex] = j
	}

	healthRows, _, err := s.store.GetAllNodeHealth(ctx)
	if err != nil {
		s.logger.Printf("failed to read node health: %v", err)
	}
	healthMap := make(map[string]store.HealthRow, len(healthRows))
	for _, h := range healthRows {
		healthMap[h.ParticipantIndex] = h
	}

	for i := range participants {
		p := &participants[i]
		if j, ok := jailMap[p.Index]; ok {
			applyJailRow(p, j)
		}
		if h, ok := healthMap[p.Index]; ok {
			p.NodeHealthy = boolPtr(h.IsHealthy)
			lastCheck := h.LastCheck
			p.NodeHealthCheckedAt = &lastCheck
		}
	}
	return participants
}

// applyJailRow copies one cached jail row's overlay fields onto a
// participant, shared by mergeJailAndHealth and mergeCachedOverlaysOnly.
func applyJailRow(p *ParticipantStats, j store.JailRow) {
	p.IsJailed = boolPtr(j.IsJailed)
	if j.JailedUntil.Valid {
		p.JailedUntil = strPtr(j.JailedUntil.String)
	}
	if j.ReadyToUnjail.Valid {
		p.ReadyToUnjail = boolPtr(j.ReadyToUnjail.Bool)
	}
	if j.Moniker.Valid {
		p.Moniker = strPtr(j.Moniker.String)
	}
	if j.Identity.Valid {
		p.Identity = strPtr(j.Identity.String)
	}
	if j.KeybaseUsername.Valid {
		p.KeybaseUsername = strPtr(j.KeybaseUsername.String)
	}
	if j.KeybasePictureURL.Valid {
		p.KeybasePictureURL = strPtr(j.KeybasePictureURL.String)
	}
	if j.Website.Valid {
		p.Website = strPtr(j.Website.String)
	}
	if j.ValidatorConsensusKey.Valid {
		p.ValidatorConsensusKey = strPtr(j.ValidatorConsensusKey.String)
	}
	if j.ConsensusKeyMismatch.Valid {
		p.ConsensusKeyMismatch = boolPtr(j.ConsensusKeyMismatch.Bool)
	}
}

func (s *Service) fetchAndCacheNodeHealth(ctx context.Context, active []upstream.EpochParticipant) {
	var rows []store.HealthRow
	for _, p := range active {
		if p.Index == "" {
			continue
		}
		result := s.client.CheckNodeHealth(ctx, p.InferenceURL)
		row := store.HealthRow{
			ParticipantIndex: p.Index,
			IsHealthy:        result.IsHealthy,
			LastCheck:        time.Now().UTC(),
		}
		if result.ErrorMessage != "" {
			row.ErrorMessage.String, row.ErrorMessage.Valid = result.ErrorMessage, true
		}
		if result.ResponseTimeMs != nil {
			row.ResponseTimeMs.Int64, row.ResponseTimeMs.Valid = *result.ResponseTimeMs, true
		}
		rows = append(rows, row)
	}
	for _, row := range rows {
		if err := s.store.UpsertNodeHealth(ctx, row); err != nil {
			s.logger.Printf("failed to persist node health for %s: %v", row.ParticipantIndex, err)
		}
	}
	s.logger.Printf("cached health statuses for %d participants", len(rows))
}

// computeJailOverlay is the eight-step jail/identity computation of
// spec.md §4.3.6, run against validators and signing info fetched at
// height.
func (s *Service) computeJailOverlay(ctx context.Context, epochID uint64, height int64, active []upstream.EpochParticipant) error {
	validators, err := s.client.Validators(ctx, height)
	if err != nil {
		return err
	}

	validatorByOperator := make(map[string]upstream.Validator)
	for _, v := range validators {
		tokens := parseDecimal(v.Tokens)
		if tokens <= 0 || v.OperatorAddress == "" {
			continue
		}
		validatorByOperator[v.OperatorAddress] = v
	}

	now := time.Now().UTC()
	var rows []store.JailRow

	for _, p := range active {
		valoperAddr := upstream.ConvertBech32(p.Index, "gonkavaloper")
		if valoperAddr == "" {
			continue
		}
		validator, ok := validatorByOperator[valoperAddr]
		if !ok {
			continue
		}

		consensusPub := validator.ConsensusPubkey.Key
		if consensusPub == "" {
			consensusPub = validator.ConsensusPubkey.Value
		}

		var consensusKeyMismatch sql.NullBool
		if consensusPub != "" && p.ValidatorKey != "" {
			consensusKeyMismatch = sql.NullBool{Bool: consensusPub != p.ValidatorKey, Valid: true}
		}

		isJailed := validator.Jailed
		var valconsAddr string
		if consensusPub != "" {
			valconsAddr = upstream.PubkeyToValcons(consensusPub, "gonkavalcons")
		}

		var jailedUntil sql.NullString
		// A participant who isn't jailed is never "ready to unjail";
		// only a jailed one whose signing info carries a real
		// jailed_until overrides this below, true once that time has
		// passed.
		readyToUnjail := sql.NullBool{Bool: false, Valid: true}
		if isJailed && valconsAddr != "" {
			signingInfo, err := s.client.SigningInfo(ctx, valconsAddr, height)
			if err == nil && signingInfo != nil && signingInfo.JailedUntil != "" && !strings.Contains(signingInfo.JailedUntil, "1970-01-01") {
				jailedUntil = sql.NullString{String: signingInfo.JailedUntil, Valid: true}
				if t, err := time.Parse(time.RFC3339, strings.Replace(signingInfo.JailedUntil, "Z", "+00:00", 1)); err == nil {
					readyToUnjail = sql.NullBool{Bool: now.After(t), Valid: true}
				}
			}
		}

		moniker := strings.TrimSpace(validator.Description.Moniker)
		identity := strings.TrimSpace(validator.Description.Identity)
		website := strings.TrimSpace(validator.Description.Website)
		if strings.HasPrefix(moniker, "gonkavaloper") {
			moniker = ""
		}

		var keybaseUsername, keybasePictureURL sql.NullString
		if identity != "" {
			username, pictureURL, ok := upstream.GetKeybaseInfo(ctx, identity)
			if ok {
				keybaseUsername = sql.NullString{String: username, Valid: true}
				keybasePictureURL = sql.NullString{String: pictureURL, Valid: true}
			}
		}

		row := store.JailRow{
			EpochID:               epochID,
			ParticipantIndex:      p.Index,
			IsJailed:              isJailed,
			JailedUntil:           jailedUntil,
			ReadyToUnjail:         readyToUnjail,
			KeybaseUsername:       keybaseUsername,
			KeybasePictureURL:     keybasePictureURL,
			ConsensusKeyMismatch:  consensusKeyMismatch,
		}
		if valconsAddr != "" {
			row.ValconsAddress = sql.NullString{String: valconsAddr, Valid: true}
		}
		if moniker != "" {
			row.Moniker = sql.NullString{String: moniker, Valid: true}
		}
		if identity != "" {
			row.Identity = sql.NullString{String: identity, Valid: true}
		}
		if website != "" {
			row.Website = sql.NullString{String: website, Valid: true}
		}
		if consensusPub != "" {
			row.ValidatorConsensusKey = sql.NullString{String: consensusPub, Valid: true}
		}

		rows = append(rows, row)
	}

	if err := s.store.UpsertJailBatch(ctx, rows); err != nil {
		return err
	}
	s.logger.Printf("cached jail statuses for %d participants in epoch %d", len(rows), epochID)
	return nil
}
