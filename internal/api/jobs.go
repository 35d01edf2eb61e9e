package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/creator-discovery/internal/auth"
	"github.com/JakeFAU/creator-discovery/internal/dispatcher"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
	maxBodyBytes     = 1 << 20
)

type createJobRequest struct {
	Keywords       []string          `json:"keywords"`
	TargetUsername string            `json:"targetUsername"`
	TargetResults  int               `json:"targetResults"`
	CampaignID     string            `json:"campaignId"`
	Options        map[string]string `json:"options"`
}

type createJobResponse struct {
	JobID            string    `json:"jobId"`
	QStashMessageID  string    `json:"qstashMessageId,omitempty"`
	Engine           string    `json:"engine"`
	TargetResults    int       `json:"targetResults"`
	RequestedResults int       `json:"requestedResults,omitempty"`
	Adjusted         bool      `json:"adjusted,omitempty"`
	AdjustedLimit    *int      `json:"adjustedLimit,omitempty"`
	Message          string    `json:"message,omitempty"`
	TimeoutAt        time.Time `json:"timeoutAt"`
}

type jobStatusResponse struct {
	JobID            string              `json:"jobId"`
	Status           scraping.JobStatus  `json:"status"`
	Platform         scraping.Platform   `json:"platform"`
	ProcessedResults int                 `json:"processedResults"`
	TargetResults    int                 `json:"targetResults"`
	Progress         int                 `json:"progress"`
	Results          []json.RawMessage   `json:"results"`
	Pagination       scraping.Pagination `json:"pagination"`
	Error            string              `json:"error,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	TimeoutAt        time.Time           `json:"timeoutAt"`
	CompletedAt      *time.Time          `json:"completedAt,omitempty"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return
	}
	res, err := s.deps.Dispatcher.CreateJob(r.Context(), dispatcher.Request{
		UserID:         auth.UserID(r.Context()),
		CampaignID:     req.CampaignID,
		Platform:       chi.URLParam(r, "platform"),
		Keywords:       req.Keywords,
		TargetUsername: req.TargetUsername,
		TargetResults:  req.TargetResults,
		Options:        req.Options,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := createJobResponse{
		JobID:           res.JobID,
		QStashMessageID: res.MessageID,
		Engine:          res.Engine,
		TargetResults:   res.TargetResults,
		TimeoutAt:       res.TimeoutAt,
	}
	if res.Adjusted {
		resp.Adjusted = true
		resp.RequestedResults = res.RequestedResults
		resp.AdjustedLimit = res.Decision.AdjustedLimit
		resp.Message = "Target reduced to " + strconv.Itoa(res.TargetResults) + " creators remaining on the " + res.Decision.Plan + " plan this month"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		jobID = r.URL.Query().Get("jobId")
	}
	if jobID == "" {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: "jobId is required"})
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: "limit must be a non-negative integer"})
		return
	}
	limit = min(limit, maxPageLimit)
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Message: "offset must be a non-negative integer"})
		return
	}

	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}
	st, err := s.deps.Status.GetJobStatus(r.Context(), jobID, userID, limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:            st.JobID,
		Status:           st.Status,
		Platform:         st.Platform,
		ProcessedResults: st.ProcessedResults,
		TargetResults:    st.TargetResults,
		Progress:         st.Progress,
		Results:          st.Results,
		Pagination:       st.Pagination,
		Error:            st.Error,
		CreatedAt:        st.CreatedAt,
		TimeoutAt:        st.TimeoutAt,
		CompletedAt:      st.CompletedAt,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
