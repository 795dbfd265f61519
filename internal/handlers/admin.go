package handlers

import (
	"net/http"

	"github.com/abrezinsky/weeklyvote/internal/services"
)

// handleFraudScan scans a period for suspicious voting
func (h *Handlers) handleFraudScan(w http.ResponseWriter, r *http.Request) {
	periodID, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req FraudScanRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.respondError(w, err)
			return
		}
	}

	actor := h.Auth.ActorFromRequest(r)
	report, err := h.Fraud.ScanFraud(r.Context(), actor, periodID, services.ScanOptions{
		DryRun:     req.DryRun,
		Invalidate: req.Invalidate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondOK(w, report)
}

// handlePublishResults scores a period and writes its winners and rewards
func (h *Handlers) handlePublishResults(w http.ResponseWriter, r *http.Request) {
	periodID, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	result, err := h.Results.PublishResults(r.Context(), h.Auth.ActorFromRequest(r), periodID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondOK(w, result)
}

// handleRankingPreview returns the current ranking without persisting it
func (h *Handlers) handleRankingPreview(w http.ResponseWriter, r *http.Request) {
	periodID, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	rankings, err := h.Results.PreviewRanking(r.Context(), h.Auth.ActorFromRequest(r), periodID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondOK(w, map[string]interface{}{
		"period_id":  periodID,
		"categories": rankings,
	})
}

// handleVoteEvents returns the audit trail of a vote
func (h *Handlers) handleVoteEvents(w http.ResponseWriter, r *http.Request) {
	voteID, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	events, err := h.Fraud.GetAuditTrail(r.Context(), h.Auth.ActorFromRequest(r), int64(voteID))
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondOK(w, map[string]interface{}{
		"vote_id": voteID,
		"events":  events,
	})
}

// handleSeedDemo loads a demo period
func (h *Handlers) handleSeedDemo(w http.ResponseWriter, r *http.Request) {
	result, err := h.Seed.SeedDemo(r.Context(), h.Auth.ActorFromRequest(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondCreated(w, result)
}
