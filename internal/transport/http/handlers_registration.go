package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voterchain/internal/lifecycle"
	"voterchain/internal/platform/middleware"
	"voterchain/internal/voter/models"
	dErrors "voterchain/pkg/domain-errors"
	"voterchain/pkg/platform/httputil"
)

// RegistrationHandler serves voter enrollment and record lookup.
type RegistrationHandler struct {
	service RegistrationService
	logger  *slog.Logger
}

// RegistrationService is the slice of the lifecycle orchestrator this
// handler needs.
type RegistrationService interface {
	Register(ctx context.Context, in lifecycle.RegisterInput) (lifecycle.RegisterResult, error)
	Status(ctx context.Context, voterID string) (*models.VoterRecord, error)
}

func (h *RegistrationHandler) Register(r chi.Router) {
	r.Route("/api/registration", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Get("/status/{voter_id}", h.handleStatus)
	})
}

func (h *RegistrationHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in lifecycle.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if device := middleware.GetDevice(ctx); device.Bot {
		h.logger.WarnContext(ctx, "registration attempt from bot user agent",
			"request_id", middleware.GetRequestID(ctx))
	}

	result, err := h.service.Register(ctx, in)
	if err != nil {
		h.logError(ctx, "registration failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *RegistrationHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voterID := chi.URLParam(r, "voter_id")

	record, err := h.service.Status(ctx, voterID)
	if err != nil {
		h.logError(ctx, "status lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *RegistrationHandler) logError(ctx context.Context, msg string, err error) {
	log := h.logger.WarnContext
	if dErrors.Is(err, dErrors.CodeInternal) {
		log = h.logger.ErrorContext
	}
	log(ctx, msg, "request_id", middleware.GetRequestID(ctx), "error", err.Error())
}
