package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wrenchhub/wrenchhub/internal/application/marketplace"
	"github.com/wrenchhub/wrenchhub/internal/domain/rfq"
)

type rfqCreateRequest struct {
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Vehicle         rfq.Vehicle `json:"vehicle"`
	Category        string      `json:"category"`
	Urgency         string      `json:"urgency"`
	BudgetMinCents  int64       `json:"budget_min_cents,omitempty"`
	BudgetMaxCents  int64       `json:"budget_max_cents,omitempty"`
	BidDeadline     time.Time   `json:"bid_deadline"`
	MaxBids         int         `json:"max_bids"`
	OriginSessionID *uuid.UUID  `json:"origin_session_id,omitempty"`
}

type bidCreateRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	Notes         string `json:"notes,omitempty"`
	EstimatedDays int    `json:"estimated_days,omitempty"`
}

func (s *Server) postRfq(w http.ResponseWriter, r *http.Request) {
	var req rfqCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	created, err := s.marketplaceSvc.PostRfq(r.Context(), marketplace.PostInput{
		CustomerID: authUserFromContext(r.Context()).UserID,
		Details: rfq.Details{
			Title:           req.Title,
			Description:     req.Description,
			Vehicle:         req.Vehicle,
			Category:        req.Category,
			Urgency:         rfq.Urgency(strings.ToLower(req.Urgency)),
			BudgetMinCents:  req.BudgetMinCents,
			BudgetMaxCents:  req.BudgetMaxCents,
			OriginSessionID: req.OriginSessionID,
		},
		BidDeadline: req.BidDeadline,
		MaxBids:     req.MaxBids,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// listRfqs serves the board. Query: status, category, urgency, min_budget,
// max_budget, hide_bid, mine, expr, limit, offset.
func (s *Server) listRfqs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := authUserFromContext(r.Context())
	var filter rfq.Filter
	if v := q.Get("status"); v != "" {
		st := rfq.Status(strings.ToLower(v))
		filter.Status = &st
	}
	mine := q.Get("mine") == "true"
	if filter.Status != nil && *filter.Status != rfq.StatusOpen && !mine && !user.IsAdmin() {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "closed rfqs are listed for their owner only")
		return
	}
	filter.Category = strings.ToLower(strings.TrimSpace(q.Get("category")))
	filter.Urgency = rfq.Urgency(strings.ToLower(q.Get("urgency")))
	var err error
	if filter.MinBudgetCents, err = parseCents(q.Get("min_budget")); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid min_budget")
		return
	}
	if filter.MaxBudgetCents, err = parseCents(q.Get("max_budget")); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid max_budget")
		return
	}
	if q.Get("hide_bid") == "true" {
		filter.ExcludeBidder = &user.UserID
	}
	if mine {
		filter.CustomerID = &user.UserID
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	rfqs, err := s.marketplaceSvc.ListRfqs(r.Context(), marketplace.ListInput{
		Filter:     filter,
		Expression: q.Get("expr"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rfqs": rfqs})
}

func parseCents(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *Server) getRfq(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "rfqId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid rfqId")
		return
	}
	found, err := s.marketplaceSvc.GetRfq(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if found == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "rfq not found")
		return
	}
	respondJSON(w, http.StatusOK, found)
}

func (s *Server) cancelRfq(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "rfqId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid rfqId")
		return
	}
	res, err := s.marketplaceSvc.CancelRfq(r.Context(), id, authUserFromContext(r.Context()).UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOutcome(w, res.Result, http.StatusOK, res)
}

func (s *Server) submitBid(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "rfqId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid rfqId")
		return
	}
	var req bidCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.marketplaceSvc.SubmitBid(r.Context(), marketplace.BidInput{
		RFQID:         id,
		WorkshopID:    authUserFromContext(r.Context()).UserID,
		AmountCents:   req.AmountCents,
		Notes:         req.Notes,
		EstimatedDays: req.EstimatedDays,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOutcome(w, res.Result, http.StatusCreated, res)
}

func (s *Server) listBids(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "rfqId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid rfqId")
		return
	}
	bids, err := s.marketplaceSvc.ListBids(r.Context(), id, authUserFromContext(r.Context()).UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if bids == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "rfq not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"bids": bids})
}

func (s *Server) acceptBid(w http.ResponseWriter, r *http.Request) {
	rfqID, bidID, ok := parseBidPath(w, r)
	if !ok {
		return
	}
	res, err := s.marketplaceSvc.AcceptBid(r.Context(), rfqID, bidID, authUserFromContext(r.Context()).UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOutcome(w, res.Result, http.StatusOK, res)
}

func (s *Server) rejectBid(w http.ResponseWriter, r *http.Request) {
	rfqID, bidID, ok := parseBidPath(w, r)
	if !ok {
		return
	}
	res, err := s.marketplaceSvc.RejectBid(r.Context(), rfqID, bidID, authUserFromContext(r.Context()).UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOutcome(w, res.Result, http.StatusOK, res)
}

func parseBidPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	rfqID, err := parseUUIDParam(r, "rfqId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid rfqId")
		return uuid.Nil, uuid.Nil, false
	}
	bidID, err := parseUUIDParam(r, "bidId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid bidId")
		return uuid.Nil, uuid.Nil, false
	}
	return rfqID, bidID, true
}
