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

// TransferHandler serves cross-state registration moves.
type TransferHandler struct {
	service TransferService
	logger  *slog.Logger
}

type TransferService interface {
	Transfer(ctx context.Context, in lifecycle.TransferInput) (lifecycle.TransferResult, error)
}

func (h *TransferHandler) Register(r chi.Router) {
	r.Post("/api/transfer", h.handleTransfer)
}

func (h *TransferHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in lifecycle.TransferInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.service.Transfer(ctx, in)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "transfer failed",
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
