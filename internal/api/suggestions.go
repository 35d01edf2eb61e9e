package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/creator-discovery/internal/auth"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
	"github.com/JakeFAU/creator-discovery/internal/suggest"
)

type suggestionsRequest struct {
	Seed     string `json:"seed"`
	Platform string `json:"platform"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
	Cached      bool     `json:"cached"`
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Suggest == nil {
		writeError(w, http.StatusServiceUnavailable, errorBody{Error: "Suggestions are not configured"})
		return
	}
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}
	var req suggestionsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return
	}
	var platform scraping.Platform
	if strings.TrimSpace(req.Platform) != "" {
		p, err := scraping.ParsePlatform(req.Platform)
		if err != nil {
			writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: err.Error()})
			return
		}
		platform = p
	}
	planName, err := s.deps.Plans.ResolvePlan(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("resolve plan: %w", err))
		return
	}

	resp, err := s.deps.Suggest.Suggest(r.Context(), suggest.Request{Seed: req.Seed, Platform: platform, Plan: planName})
	if err != nil {
		if errors.Is(err, suggest.ErrEmptySeed) {
			writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: "seed is required"})
			return
		}
		s.writeDomainError(w, r, fmt.Errorf("suggest: %w", err))
		return
	}
	keywords := resp.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: keywords, Cached: resp.Cached})
}
