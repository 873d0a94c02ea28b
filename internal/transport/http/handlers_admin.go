package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"voterchain/internal/audit"
	"voterchain/internal/ledger"
	ledgermodels "voterchain/internal/ledger/models"
	"voterchain/internal/lifecycle"
	"voterchain/internal/platform/middleware"
	"voterchain/internal/state"
	"voterchain/internal/voter/models"
	dErrors "voterchain/pkg/domain-errors"
	"voterchain/pkg/platform/httputil"
)

const (
	defaultBlockPageSize = 50
	maxBlockPageSize     = 500
)

// AdminHandler serves the operator surface: chain exploration, integrity
// checks, the tamper demonstration, and the dashboard. Everything except
// login sits behind a bearer JWT.
type AdminHandler struct {
	lifecycle    *lifecycle.Service
	audit        *audit.Service
	cluster      *state.Cluster
	logger       *slog.Logger
	jwt          *middleware.JWTManager
	user         string
	passwordHash string
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(h.jwt, h.logger))
			r.Get("/blockchain/blocks", h.handleBlocks)
			r.Post("/run-integrity-check", h.handleIntegrityCheck)
			r.Post("/simulate-hack/{voter_id}", h.handleSimulateHack)
			r.Get("/dashboard", h.handleDashboard)
		})
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *AdminHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if h.passwordHash == "" {
		h.logger.ErrorContext(ctx, "admin login attempted with no credential configured")
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin login is not configured"))
		return
	}
	if req.Username != h.user ||
		bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)) != nil {
		h.logger.WarnContext(ctx, "admin login rejected",
			"request_id", middleware.GetRequestID(ctx), "username", req.Username)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}

	token, err := h.jwt.Issue(req.Username)
	if err != nil {
		h.logger.ErrorContext(ctx, "token issue failed", "error", err.Error())
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "token issue failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token})
}

type blocksResponse struct {
	State      string               `json:"state"`
	Blocks     []ledgermodels.Block `json:"blocks"`
	Total      int64                `json:"total"`
	ChainValid bool                 `json:"chain_valid"`
	Faults     []ledger.Fault       `json:"faults,omitempty"`
}

func (h *AdminHandler) handleBlocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateName := r.URL.Query().Get("state")
	if stateName == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "state query parameter is required"))
		return
	}
	backend, err := h.cluster.Backend(stateName)
	if err != nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown state %q", stateName))
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultBlockPageSize)
	if offset < 0 || limit <= 0 || limit > maxBlockPageSize {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid offset or limit"))
		return
	}

	blocks, total, err := backend.Ledger.Chain(ctx, offset, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "chain read failed", "state", stateName, "error", err.Error())
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "chain read failed"))
		return
	}
	faults, err := backend.Ledger.VerifyChain(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "chain verification failed", "state", stateName, "error", err.Error())
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "chain verification failed"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, blocksResponse{
		State:      stateName,
		Blocks:     blocks,
		Total:      total,
		ChainValid: len(faults) == 0,
		Faults:     faults,
	})
}

type integrityReport struct {
	State      string         `json:"state"`
	Verdicts   []audit.Result `json:"verdicts"`
	ChainValid bool           `json:"chain_valid"`
	Faults     []ledger.Fault `json:"faults,omitempty"`
}

func (h *AdminHandler) handleIntegrityCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	states := h.cluster.Names()
	if requested := r.URL.Query().Get("state"); requested != "" {
		states = []string{requested}
	}

	reports := make([]integrityReport, 0, len(states))
	for _, stateName := range states {
		backend, err := h.cluster.Backend(stateName)
		if err != nil {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown state %q", stateName))
			return
		}
		verdicts, err := h.audit.AuditAll(ctx, stateName)
		if err != nil {
			h.logger.ErrorContext(ctx, "integrity sweep failed", "state", stateName, "error", err.Error())
			httputil.WriteError(w, err)
			return
		}
		faults, err := backend.Ledger.VerifyChain(ctx)
		if err != nil {
			h.logger.ErrorContext(ctx, "chain verification failed", "state", stateName, "error", err.Error())
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "chain verification failed"))
			return
		}
		reports = append(reports, integrityReport{
			State:      stateName,
			Verdicts:   verdicts,
			ChainValid: len(faults) == 0,
			Faults:     faults,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h *AdminHandler) handleSimulateHack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voterID := chi.URLParam(r, "voter_id")

	record, err := h.lifecycle.Status(ctx, voterID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tampered, err := h.audit.SimulateTampering(ctx, record.CurrentState, voterID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.WarnContext(ctx, "tamper simulation requested",
		"request_id", middleware.GetRequestID(ctx),
		"admin", middleware.GetAdmin(ctx),
		"voter_id", voterID,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message":  "voter record mutated outside the ledger; run an integrity check to observe the verdict",
		"voter_id": voterID,
		"state":    tampered.CurrentState,
		"address":  tampered.AddressLine1,
	})
}

type dashboardStateCounts struct {
	TotalVoters  int   `json:"total_voters"`
	ActiveVoters int   `json:"active_voters"`
	VotedVoters  int   `json:"voted_voters"`
	BlockCount   int64 `json:"block_count"`
}

func (h *AdminHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	perState := make(map[string]dashboardStateCounts, len(h.cluster.Names()))
	for _, stateName := range h.cluster.Names() {
		backend, err := h.cluster.Backend(stateName)
		if err != nil {
			continue
		}
		records, err := backend.Voters.List(ctx)
		if err != nil {
			h.logger.ErrorContext(ctx, "dashboard listing failed", "state", stateName, "error", err.Error())
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "dashboard aggregation failed"))
			return
		}
		_, total, err := backend.Ledger.Chain(ctx, 0, 1)
		if err != nil {
			h.logger.ErrorContext(ctx, "dashboard chain count failed", "state", stateName, "error", err.Error())
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "dashboard aggregation failed"))
			return
		}

		counts := dashboardStateCounts{BlockCount: total}
		for _, record := range records {
			counts.TotalVoters++
			switch record.Status {
			case models.StatusActive:
				counts.ActiveVoters++
			case models.StatusVoted:
				counts.VotedVoters++
			}
		}
		perState[stateName] = counts
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"states": perState})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
