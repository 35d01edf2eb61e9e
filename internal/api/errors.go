package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/dispatcher"
	"github.com/JakeFAU/creator-discovery/internal/plan"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
	"github.com/JakeFAU/creator-discovery/internal/status"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Upgrade bool        `json:"upgrade,omitempty"`
	Usage   *plan.Usage `json:"usage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}

func limitBody(d plan.Decision, message string) errorBody {
	usage := d.Usage
	return errorBody{
		Error:   "Plan limit reached",
		Message: message,
		Upgrade: true,
		Usage:   &usage,
	}
}

// writeDomainError maps service errors to status codes. Unknown errors are
// logged and answered with a generic 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *dispatcher.ValidationError
		limit      *dispatcher.LimitError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: validation.Error()})
	case errors.As(err, &limit):
		writeError(w, http.StatusForbidden, limitBody(limit.Decision, "Monthly creator limit reached for the "+limit.Decision.Plan+" plan"))
	case errors.Is(err, dispatcher.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
	case errors.Is(err, dispatcher.ErrCampaignNotFound):
		writeError(w, http.StatusNotFound, errorBody{Error: "Campaign not found"})
	case errors.Is(err, scraping.ErrNotFound):
		writeError(w, http.StatusNotFound, errorBody{Error: "Not found"})
	case errors.Is(err, status.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: err.Error()})
	default:
		s.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
	}
}
