package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
)

const reconcileBatch = 100

func (s *Server) reaperPreview(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reaperSvc.Preview(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) reaperExecute(w http.ResponseWriter, r *http.Request) {
	user := authUserFromContext(r.Context())
	summary, err := s.reaperSvc.Execute(r.Context(), "admin:"+user.UserID.String())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) reaperRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r, 20, 100)
	runs, err := s.reaperSvc.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// cronReaper is the external scheduler's entry point: one sweep plus a referral
// reconciliation pass.
func (s *Server) cronReaper(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reaperSvc.Execute(r.Context(), "cron")
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	recorded, err := s.marketplaceSvc.ReconcileReferrals(r.Context(), reconcileBatch)
	if err != nil {
		s.logger.Warn().Err(err).Msg("referral reconciliation failed")
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"summary":           summary,
		"referralsRecorded": recorded,
	})
}

// sseEndpoint streams events addressed to the caller or the caller's role group.
func (s *Server) sseEndpoint(w http.ResponseWriter, r *http.Request) {
	user := authUserFromContext(r.Context())
	clientID := uuid.NewString()
	userID := user.UserID.String()
	client := notification.NewSSEClient(clientID, &userID, []string{user.Group()})
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(clientID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg := <-client.MessageChan:
			if msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("id: " + msg.ID + "\nevent: " + msg.Event + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
