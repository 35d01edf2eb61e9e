package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/creator-discovery/internal/auth"
	"github.com/JakeFAU/creator-discovery/internal/metrics"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

const maxCampaignNameLength = 200

type createCampaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) createCampaign(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}
	var req createCampaignRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxCampaignNameLength {
		writeError(w, http.StatusBadRequest, errorBody{
			Error:   "Invalid request",
			Message: fmt.Sprintf("name is required and must be at most %d characters", maxCampaignNameLength),
		})
		return
	}

	decision, err := s.deps.Plans.ValidateCampaignCreation(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	metrics.ObservePlanDecision("campaign", string(decision.Reason))
	if !decision.Allowed {
		writeError(w, http.StatusForbidden, limitBody(decision, "Campaign limit reached for the "+decision.Plan+" plan"))
		return
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("generate campaign id: %w", err))
		return
	}
	now := s.deps.Clock.Now()
	campaign := scraping.Campaign{
		ID:          id,
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Status:      scraping.CampaignStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Campaigns.CreateCampaign(r.Context(), campaign); err != nil {
		s.writeDomainError(w, r, fmt.Errorf("create campaign: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}
	campaigns, err := s.deps.Campaigns.ListCampaigns(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("list campaigns: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": campaigns})
}

func (s *Server) usage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}
	snap, err := s.deps.Plans.Usage(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("usage: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
