// Package httptransport wires the public HTTP surface: voter-facing
// registration, transfer and voting endpoints, plus the JWT-guarded admin
// surface. Handlers stay thin; all rules live in the services.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voterchain/internal/audit"
	"voterchain/internal/lifecycle"
	"voterchain/internal/platform/middleware"
	"voterchain/internal/state"
	"voterchain/pkg/platform/httputil"
)

const requestTimeout = 30 * time.Second

// Deps collects everything the router needs.
type Deps struct {
	Lifecycle *lifecycle.Service
	Audit     *audit.Service
	Cluster   *state.Cluster
	Logger    *slog.Logger
	JWT       *middleware.JWTManager

	AdminUser         string
	AdminPasswordHash string
}

// NewRouter assembles the full route tree.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Device)

	r.Get("/healthz", handleHealth(deps.Cluster))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	registration := &RegistrationHandler{service: deps.Lifecycle, logger: deps.Logger}
	registration.Register(r)

	transfer := &TransferHandler{service: deps.Lifecycle, logger: deps.Logger}
	transfer.Register(r)

	voting := &VotingHandler{service: deps.Lifecycle, logger: deps.Logger}
	voting.Register(r)

	admin := &AdminHandler{
		lifecycle:    deps.Lifecycle,
		audit:        deps.Audit,
		cluster:      deps.Cluster,
		logger:       deps.Logger,
		jwt:          deps.JWT,
		user:         deps.AdminUser,
		passwordHash: deps.AdminPasswordHash,
	}
	admin.Register(r)

	return r
}

func handleHealth(cluster *state.Cluster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"states": cluster.Names(),
		})
	}
}
