package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/gonka-ai/inferencecache/internal/aggregateerr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case aggregateerr.Is(err, aggregateerr.KindInvalidHeight):
		status = http.StatusBadRequest
	case aggregateerr.Is(err, aggregateerr.KindNotFound):
		status = http.StatusNotFound
	case aggregateerr.Is(err, aggregateerr.KindUpstreamUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseEpochID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["epochId"], 10, 64)
}

// parseHeight reads the optional "height" query parameter used by the
// historical epoch/model/participant routes to pin a specific block.
func parseHeight(r *http.Request) *int64 {
	raw := r.URL.Query().Get("height")
	if raw == "" {
		return nil
	}
	h, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &h
}

func (s *Server) handleCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	reload := r.URL.Query().Get("reload") == "true"
	resp, err := s.svc.CurrentEpochStats(r.Context(), reload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistoricalEpoch(w http.ResponseWriter, r *http.Request) {
	epochID, err := parseEpochID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid epoch id"})
		return
	}
	resp, err := s.svc.HistoricalEpochStats(r.Context(), epochID, parseHeight(r), false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleParticipantDetails(w http.ResponseWriter, r *http.Request) {
	epochID, err := parseEpochID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid epoch id"})
		return
	}
	participantID := mux.Vars(r)["participantId"]
	resp, err := s.svc.ParticipantDetails(r.Context(), participantID, epochID, parseHeight(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleParticipantInferences(w http.ResponseWriter, r *http.Request) {
	epochID, err := parseEpochID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid epoch id"})
		return
	}
	participantID := mux.Vars(r)["participantId"]
	resp, err := s.svc.ParticipantInferences(r.Context(), epochID, participantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentModels(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.CurrentModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistoricalModels(w http.ResponseWriter, r *http.Request) {
	epochID, err := parseEpochID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid epoch id"})
		return
	}
	resp, err := s.svc.HistoricalModels(r.Context(), epochID, parseHeight(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Timeline(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
