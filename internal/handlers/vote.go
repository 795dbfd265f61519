package handlers

import (
	"net"
	"net/http"

	"github.com/abrezinsky/weeklyvote/internal/auth"
	"github.com/abrezinsky/weeklyvote/internal/services"
)

// handleHealth reports liveness
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, map[string]string{"status": "ok"})
}

// handleCastVote runs a vote through admission
func (h *Handlers) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req VoteSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.SubmissionID <= 0 {
		h.respondError(w, BadRequest("submission_id is required"))
		return
	}

	result, err := h.Voting.CastVote(r.Context(), services.VoteRequest{
		Identity:     auth.IdentityFromRequest(r),
		SubmissionID: req.SubmissionID,
		Emotion:      req.Emotion,
		Originality:  req.Originality,
		Production:   req.Production,
		Comment:      req.Comment,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondCreated(w, result)
}

// handleVoterStatus returns the caller's remaining allowances in a period
func (h *Handlers) handleVoterStatus(w http.ResponseWriter, r *http.Request) {
	periodID, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	status, err := h.Voting.GetVoterStatus(r.Context(), auth.IdentityFromRequest(r), periodID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondOK(w, status)
}

// handleGetWinners returns the published winners of a period
func (h *Handlers) handleGetWinners(w http.ResponseWriter, r *http.Request) {
	periodID, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	winners, err := h.Results.GetWinners(r.Context(), periodID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondOK(w, map[string]interface{}{
		"period_id": periodID,
		"winners":   winners,
	})
}

// handleGetSubmission returns a submission
func (h *Handlers) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	sub, err := h.Submission.GetSubmission(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondOK(w, sub)
}

// handleSubmissionQR serves a PNG share code for an approved submission
func (h *Handlers) handleSubmissionQR(w http.ResponseWriter, r *http.Request) {
	id, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	png, err := h.Submission.ShareQR(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

// clientIP returns the caller address without its port. RealIP has already
// replaced RemoteAddr when a proxy header was present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
