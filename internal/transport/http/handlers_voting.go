package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voterchain/internal/lifecycle"
	"voterchain/internal/platform/middleware"
	dErrors "voterchain/pkg/domain-errors"
	"voterchain/pkg/platform/httputil"
)

// VotingHandler serves eligibility checks and vote casting.
type VotingHandler struct {
	service VotingService
	logger  *slog.Logger
}

type VotingService interface {
	Vote(ctx context.Context, in lifecycle.VoteInput) (lifecycle.VoteResult, error)
	Eligibility(ctx context.Context, voterID string) (lifecycle.EligibilityResult, error)
}

func (h *VotingHandler) Register(r chi.Router) {
	r.Route("/api/voting", func(r chi.Router) {
		r.Get("/eligibility/{voter_id}", h.handleEligibility)
		r.Post("/vote", h.handleVote)
	})
}

func (h *VotingHandler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voterID := chi.URLParam(r, "voter_id")

	result, err := h.service.Eligibility(ctx, voterID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *VotingHandler) handleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in lifecycle.VoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	device := middleware.GetDevice(ctx)
	h.logger.InfoContext(ctx, "vote intake",
		"request_id", middleware.GetRequestID(ctx),
		"booth_id", in.BoothID,
		"device_os", device.OS,
		"device_mobile", device.Mobile,
	)

	result, err := h.service.Vote(ctx, in)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "vote failed",
				"request_id", middleware.GetRequestID(ctx),
				"voter_id", in.VoterID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
