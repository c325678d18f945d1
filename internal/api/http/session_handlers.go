package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wrenchhub/wrenchhub/internal/application/lifecycle"
	"github.com/wrenchhub/wrenchhub/internal/domain/outcome"
)

type requestCreateRequest struct {
	Description    string  `json:"description"`
	Plan           string  `json:"plan"`
	ScheduledStart *string `json:"scheduled_start,omitempty"`
}

type bookSessionRequest struct {
	MechanicID     uuid.UUID `json:"mechanic_id"`
	Plan           string    `json:"plan"`
	ScheduledStart *string   `json:"scheduled_start,omitempty"`
}

type endSessionRequest struct {
	Reason string `json:"reason,omitempty"`
	// Cancel abandons the session instead of completing it.
	Cancel bool `json:"cancel,omitempty"`
}

type extensionWebhookRequest struct {
	SessionID        uuid.UUID `json:"session_id"`
	ExtensionMinutes int       `json:"extension_minutes"`
	IdempotencyToken string    `json:"idempotency_token"`
}

// Request handlers
func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var req requestCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	start, err := parseTimeParam(req.ScheduledStart)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "scheduled_start must be RFC 3339")
		return
	}
	user := authUserFromContext(r.Context())
	created, err := s.lifecycleSvc.CreateRequest(r.Context(), lifecycle.CreateRequestInput{
		CustomerID:     user.UserID,
		Description:    req.Description,
		Plan:           req.Plan,
		ScheduledStart: start,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	reqs, err := s.lifecycleSvc.ListPendingRequests(r.Context(), limit, offset)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"requests": reqs})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	req, err := s.lifecycleSvc.GetRequest(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if req == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "request not found")
		return
	}
	user := authUserFromContext(r.Context())
	if user.Role == RoleCustomer && req.CustomerID != user.UserID {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "not your request")
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) acceptRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	res, err := s.lifecycleSvc.AcceptRequest(r.Context(), id, authUserFromContext(r.Context()).UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOutcome(w, res.Result, http.StatusCreated, res)
}

func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	res, err := s.lifecycleSvc.CancelRequest(r.Context(), id, authUserFromContext(r.Context()).UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOutcome(w, res.Result, http.StatusOK, res)
}

// Session handlers
func (s *Server) bookSession(w http.ResponseWriter, r *http.Request) {
	var req bookSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	start, err := parseTimeParam(req.ScheduledStart)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "scheduled_start must be RFC 3339")
		return
	}
	sess, err := s.lifecycleSvc.BookSession(r.Context(), lifecycle.BookInput{
		CustomerID:     authUserFromContext(r.Context()).UserID,
		MechanicID:     req.MechanicID,
		Plan:           req.Plan,
		ScheduledStart: start,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, err := s.lifecycleSvc.GetSession(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if sess == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	user := authUserFromContext(r.Context())
	if !user.IsAdmin() && !sess.IsParticipant(user.UserID) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "not a participant")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// sessionAction runs a participant operation on the session named in the path.
func (s *Server) sessionAction(op func(r *http.Request, sessionID, actorID uuid.UUID) (*lifecycle.SessionResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "sessionId")
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
			return
		}
		res, err := op(r, id, authUserFromContext(r.Context()).UserID)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		respondOutcome(w, res.Result, http.StatusOK, res)
	}
}

func (s *Server) confirmSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(func(r *http.Request, id, actor uuid.UUID) (*lifecycle.SessionResult, error) {
		return s.lifecycleSvc.ConfirmBooking(r.Context(), id, actor)
	})(w, r)
}

func (s *Server) signWaiver(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(func(r *http.Request, id, actor uuid.UUID) (*lifecycle.SessionResult, error) {
		return s.lifecycleSvc.SignWaiver(r.Context(), id, actor)
	})(w, r)
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(func(r *http.Request, id, actor uuid.UUID) (*lifecycle.SessionResult, error) {
		return s.lifecycleSvc.JoinSession(r.Context(), id, actor)
	})(w, r)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(func(r *http.Request, id, actor uuid.UUID) (*lifecycle.SessionResult, error) {
		return s.lifecycleSvc.StartSession(r.Context(), id, actor)
	})(w, r)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
			return
		}
	}
	s.sessionAction(func(r *http.Request, id, actor uuid.UUID) (*lifecycle.SessionResult, error) {
		return s.lifecycleSvc.EndSession(r.Context(), lifecycle.EndInput{
			SessionID: id,
			ActorID:   actor,
			Reason:    req.Reason,
			Completed: !req.Cancel,
		})
	})(w, r)
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	res, err := s.lifecycleSvc.Heartbeat(r.Context(), id, authUserFromContext(r.Context()).UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOutcome(w, res, http.StatusOK, res)
}

func (s *Server) listExtensions(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, err := s.lifecycleSvc.GetSession(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if sess == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	user := authUserFromContext(r.Context())
	if !user.IsAdmin() && !sess.IsParticipant(user.UserID) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "not a participant")
		return
	}
	exts, err := s.lifecycleSvc.ListExtensions(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"extensions":   exts,
		"totalMinutes": sess.ExtensionMinutes,
	})
}

// paymentExtension applies a captured extension payment. Replayed deliveries
// answer 200 with the original entry.
func (s *Server) paymentExtension(w http.ResponseWriter, r *http.Request) {
	var req extensionWebhookRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.lifecycleSvc.ExtendSession(r.Context(), req.SessionID, req.ExtensionMinutes, req.IdempotencyToken)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if res.Kind == outcome.KindSuccess && !res.Replayed {
		s.logger.Info().
			Str("sessionId", req.SessionID.String()).
			Int("minutes", req.ExtensionMinutes).
			Msg("extension payment applied")
	}
	respondOutcome(w, res.Result, http.StatusOK, res)
}
