package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/wrenchhub/wrenchhub/internal/application/lifecycle"
	"github.com/wrenchhub/wrenchhub/internal/application/marketplace"
	"github.com/wrenchhub/wrenchhub/internal/application/reaper"
	"github.com/wrenchhub/wrenchhub/internal/domain/outcome"
	"github.com/wrenchhub/wrenchhub/internal/infrastructure/sse"
)

// Roles carried in the identity provider's tokens.
const (
	RoleCustomer = "CUSTOMER"
	RoleMechanic = "MECHANIC"
	RoleWorkshop = "WORKSHOP"
	RoleAdmin    = "ADMIN"
)

// Security holds the secrets guarding the API.
type Security struct {
	JWTSecret string
	// CronSecretHash is the bcrypt hash of the X-Cron-Secret value.
	CronSecretHash       string
	PaymentWebhookSecret string
	AllowedOrigins       []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	lifecycleSvc   *lifecycle.Service
	marketplaceSvc *marketplace.Service
	reaperSvc      *reaper.Service
	sseHub         *sse.Hub
	security       Security
	logger         zerolog.Logger
}

func NewServer(
	lifecycleSvc *lifecycle.Service,
	marketplaceSvc *marketplace.Service,
	reaperSvc *reaper.Service,
	sseHub *sse.Hub,
	security Security,
	logger zerolog.Logger,
) *Server {
	return &Server{
		lifecycleSvc:   lifecycleSvc,
		marketplaceSvc: marketplaceSvc,
		reaperSvc:      reaperSvc,
		sseHub:         sseHub,
		security:       security,
		logger:         logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.security.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		// Long-lived streams must not be cut by the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/events", s.sseEndpoint)
			r.With(s.requireRole(RoleAdmin)).Get("/admin/events", s.sseEndpoint)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.With(s.requireCronSecret).Post("/cron/reaper", s.cronReaper)
			r.With(s.requireSignature).Post("/webhooks/payments/extension", s.paymentExtension)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)

				r.Route("/requests", func(r chi.Router) {
					r.With(s.requireRole(RoleCustomer)).Post("/", s.createRequest)
					r.With(s.requireRole(RoleMechanic, RoleAdmin)).Get("/", s.listRequests)
					r.Get("/{requestId}", s.getRequest)
					r.With(s.requireRole(RoleMechanic)).Post("/{requestId}/accept", s.acceptRequest)
					r.With(s.requireRole(RoleCustomer)).Post("/{requestId}/cancel", s.cancelRequest)
				})

				r.Route("/sessions", func(r chi.Router) {
					r.With(s.requireRole(RoleCustomer)).Post("/", s.bookSession)
					r.Get("/{sessionId}", s.getSession)
					r.With(s.requireRole(RoleMechanic)).Post("/{sessionId}/confirm", s.confirmSession)
					r.With(s.requireRole(RoleCustomer)).Post("/{sessionId}/waiver", s.signWaiver)
					r.Post("/{sessionId}/join", s.joinSession)
					r.Post("/{sessionId}/heartbeat", s.heartbeat)
					r.Post("/{sessionId}/start", s.startSession)
					r.Post("/{sessionId}/end", s.endSession)
					r.Get("/{sessionId}/extensions", s.listExtensions)
				})

				r.Route("/rfqs", func(r chi.Router) {
					r.With(s.requireRole(RoleCustomer)).Post("/", s.postRfq)
					r.Get("/", s.listRfqs)
					r.Get("/{rfqId}", s.getRfq)
					r.With(s.requireRole(RoleCustomer)).Post("/{rfqId}/cancel", s.cancelRfq)
					r.With(s.requireRole(RoleWorkshop)).Post("/{rfqId}/bids", s.submitBid)
					r.Get("/{rfqId}/bids", s.listBids)
					r.With(s.requireRole(RoleCustomer)).Post("/{rfqId}/bids/{bidId}/accept", s.acceptBid)
					r.With(s.requireRole(RoleCustomer)).Post("/{rfqId}/bids/{bidId}/reject", s.rejectBid)
				})

				r.Route("/admin", func(r chi.Router) {
					r.Use(s.requireRole(RoleAdmin))
					r.Get("/reaper/preview", s.reaperPreview)
					r.Post("/reaper/execute", s.reaperExecute)
					r.Get("/reaper/runs", s.reaperRuns)
				})
			})
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondOutcome writes an engine result: conflicts are 409, failed
// preconditions 422, success the given status.
func respondOutcome(w http.ResponseWriter, res outcome.Result, successStatus int, body interface{}) {
	status := successStatus
	switch res.Kind {
	case outcome.KindConflict:
		status = http.StatusConflict
	case outcome.KindPreconditionFailed:
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, body)
}

// respondServiceError maps service errors to HTTP errors.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, outcome.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	case errors.Is(err, outcome.ErrForbidden):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, outcome.ErrInvariantViolation):
		respondError(w, http.StatusBadRequest, "INVARIANT_VIOLATION", err.Error())
	default:
		s.logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseTimeParam reads an optional RFC 3339 timestamp.
func parseTimeParam(val *string) (*time.Time, error) {
	if val == nil || strings.TrimSpace(*val) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(*val))
	if err != nil {
		return nil, err
	}
	return &t, nil
}
