package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"safesaviour/core/events"
	"safesaviour/core/state"
	"safesaviour/crypto"
	"safesaviour/native/rescue"
	telemetry "safesaviour/observability/otel"
)

// Engine is the subset of the rescue engine served over HTTP.
type Engine interface {
	Rescue(ctx context.Context, caller crypto.Address, ct rescue.CollateralType, handler crypto.Address) (rescue.Result, error)
	RegisterCollateralType(caller crypto.Address, ct rescue.CollateralType, token crypto.Address) error
	ReassignCollateralToken(caller crypto.Address, ct rescue.CollateralType, token crypto.Address) error
	TokenFor(ct rescue.CollateralType) (crypto.Address, error)
	SetEligible(ctx context.Context, caller crypto.Address, id rescue.VaultID, enabled bool) error
	IsEligible(id rescue.VaultID) (bool, error)
	Parameters() (rescue.Parameters, error)
	ModifyParameters(caller crypto.Address, key, value string) error
	IsAuthorized(principal crypto.Address, role rescue.Role) (bool, error)
	RoleMembers(role rescue.Role) ([]crypto.Address, error)
	Grant(caller crypto.Address, role rescue.Role, principal crypto.Address) error
	Revoke(caller crypto.Address, role rescue.Role, principal crypto.Address) error
	SetPaused(caller crypto.Address, module string, paused bool) error
}

// Catalog lists stored bindings and flags.
type Catalog interface {
	Bindings() ([]state.Binding, error)
	EligibleVaults() ([]rescue.VaultID, error)
}

// EventSource exposes recently emitted events.
type EventSource interface {
	Events() []events.Event
}

// PauseView reports the live pause switches. Writes go through the engine.
type PauseView interface {
	IsPaused(module string) bool
}

// Metrics receives request and governance observations.
type Metrics interface {
	ObserveGovernance(operation, outcome string)
	ObserveRequest(route, method string, status int, duration time.Duration)
	RecordThrottle(reason string)
}

// Config bundles the dependencies of the HTTP server.
type Config struct {
	Engine    Engine
	Catalog   Catalog
	Events    EventSource
	Pauses    PauseView
	Metrics   Metrics
	Auth      AuthConfig
	RateLimit RateLimit
	Tracer    trace.Tracer
	Logger    *slog.Logger
	// MetricsHandler serves /metrics. Nil uses the default prometheus
	// registry.
	MetricsHandler http.Handler
}

type Server struct {
	engine   Engine
	catalog  Catalog
	events   EventSource
	pauses   PauseView
	metrics  Metrics
	auth     *Authenticator
	limiter  *RateLimiter
	tracer   trace.Tracer
	logger   *slog.Logger
	promHTTP http.Handler
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	promHTTP := cfg.MetricsHandler
	if promHTTP == nil {
		promHTTP = promhttp.Handler()
	}
	return &Server{
		engine:   cfg.Engine,
		catalog:  cfg.Catalog,
		events:   cfg.Events,
		pauses:   cfg.Pauses,
		metrics:  cfg.Metrics,
		auth:     NewAuthenticator(cfg.Auth, logger),
		limiter:  NewRateLimiter(cfg.RateLimit, cfg.Metrics),
		tracer:   tracer,
		logger:   logger.With(slog.String("component", "http")),
		promHTTP: promHTTP,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observe(s.tracer, s.metrics, s.logger))

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", s.promHTTP)

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.auth.Middleware)
		api.Use(s.limiter.Middleware)

		api.Post("/rescues", s.rescue)

		api.Get("/collateral-types", s.listCollateralTypes)
		api.Post("/collateral-types", s.registerCollateralType)
		api.Get("/collateral-types/{collateralType}", s.getCollateralType)
		api.Put("/collateral-types/{collateralType}", s.reassignCollateralType)

		api.Get("/vaults", s.listEligibleVaults)
		api.Get("/vaults/{vaultID}/eligibility", s.getEligibility)
		api.Put("/vaults/{vaultID}/eligibility", s.setEligibility)

		api.Get("/params", s.getParameters)
		api.Put("/params/{key}", s.modifyParameter)

		api.Get("/roles/{role}", s.listRole)
		api.Get("/roles/{role}/{principal}", s.checkRole)
		api.Put("/roles/{role}/{principal}", s.grantRole)
		api.Delete("/roles/{role}/{principal}", s.revokeRole)

		api.Get("/pauses/{module}", s.getPause)
		api.Put("/pauses/{module}", s.setPause)

		api.Get("/events", s.listEvents)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes err and logs server side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := toStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("code", code),
			slog.String("error", err.Error()))
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, apiError{Error: message, Code: code})
}

// governance records the outcome of a privileged operation.
func (s *Server) governance(operation string, err error) {
	if s.metrics == nil {
		return
	}
	_, code := toStatus(err)
	s.metrics.ObserveGovernance(operation, code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return wrapBadRequest(err)
	}
	return nil
}
