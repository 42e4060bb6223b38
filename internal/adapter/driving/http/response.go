package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/reposcan/internal/application"
	"github.com/ericfisherdev/reposcan/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// RepoResponse is the JSON representation of a tracked repository.
type RepoResponse struct {
	RepoID        int64           `json:"repo_id"`
	GitURL        string          `json:"git_url"`
	Name          string          `json:"name"`
	Users         []string        `json:"users"`
	ScanResults   model.ResultSet `json:"scan_results"`
	RetireResults model.ResultSet `json:"retire_results"`
	ParseResults  model.ResultSet `json:"parse_results"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

// MembershipResponse is returned when a user registers a repository.
type MembershipResponse struct {
	Repo      RepoResponse `json:"repo"`
	Created   bool         `json:"created"`
	UserAdded bool         `json:"user_added"`
}

// RemovalResponse is returned when a user leaves a repository.
type RemovalResponse struct {
	Remaining   int  `json:"remaining"`
	RepoDeleted bool `json:"repo_deleted"`
}

// SyncResponse lists the repository IDs touched by a sync.
type SyncResponse struct {
	Added     []int64  `json:"added"`
	Removed   []int64  `json:"removed"`
	Unchanged []int64  `json:"unchanged"`
	Errors    []string `json:"errors,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// RegisterRepoRequest is the JSON body for registering a repository.
type RegisterRepoRequest struct {
	RepoID  int64  `json:"repo_id" validate:"required,gt=0"`
	Name    string `json:"name" validate:"required"`
	HTMLURL string `json:"html_url" validate:"required,url"`
	GitURL  string `json:"git_url" validate:"required"`
}

// SyncReposRequest is the JSON body for replacing a user's repository set.
type SyncReposRequest struct {
	Repos []RegisterRepoRequest `json:"repos" validate:"dive"`
}

// SaveTokenRequest is the JSON body for storing a user's access token.
type SaveTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

func (req RegisterRepoRequest) params(userID string) application.RepoParams {
	return application.RepoParams{
		UserID:  userID,
		RepoID:  req.RepoID,
		Name:    req.Name,
		HTMLURL: req.HTMLURL,
		GitURL:  req.GitURL,
	}
}

// toRepoResponse converts a domain Repository to its JSON response representation.
func toRepoResponse(repo model.Repository) RepoResponse {
	resp := RepoResponse{
		RepoID:        repo.ID,
		GitURL:        repo.GitURL,
		Name:          repo.Name,
		Users:         repo.Users,
		ScanResults:   repo.ScanResults,
		RetireResults: repo.RetireResults,
		ParseResults:  repo.ParseResults,
	}
	if resp.Users == nil {
		resp.Users = []string{}
	}
	if resp.ScanResults == nil {
		resp.ScanResults = model.ResultSet{}
	}
	if resp.RetireResults == nil {
		resp.RetireResults = model.ResultSet{}
	}
	if resp.ParseResults == nil {
		resp.ParseResults = model.ResultSet{}
	}
	if !repo.CreatedAt.IsZero() {
		resp.CreatedAt = repo.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toSyncResponse(res application.SyncResult) SyncResponse {
	resp := SyncResponse{
		Added:     res.Added,
		Removed:   res.Removed,
		Unchanged: res.Unchanged,
	}
	if resp.Added == nil {
		resp.Added = []int64{}
	}
	if resp.Removed == nil {
		resp.Removed = []int64{}
	}
	if resp.Unchanged == nil {
		resp.Unchanged = []int64{}
	}
	return resp
}
