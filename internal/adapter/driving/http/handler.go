// Package httphandler is the HTTP driving adapter exposing the repository
// directory as a JSON API.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ericfisherdev/reposcan/internal/application"
	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// Directory is the subset of application.RepoDirectory the API serves.
type Directory interface {
	GetOrInsertRepo(ctx context.Context, p application.RepoParams) (application.Membership, error)
	RemoveUserFromRepo(ctx context.Context, userID string, repoID int64, htmlURL string) (application.Removal, error)
	RemoveRepo(ctx context.Context, userID string, repoID int64, htmlURL string) error
	FindAllReposByUser(ctx context.Context, userID string) ([]model.Repository, error)
	SyncUserRepos(ctx context.Context, userID string, desired []application.RepoParams) (application.SyncResult, error)
	SaveUserToken(ctx context.Context, userID, token string) error
	DeleteUser(ctx context.Context, userID string) error
}

// Compile-time interface satisfaction check.
var _ Directory = (*application.RepoDirectory)(nil)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	dir      Directory
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(dir Directory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names rather than Go field names in validation errors.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		dir:      dir,
		validate: validate,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/users/{user}/repos", h.ListUserRepos)
	mux.HandleFunc("POST /api/v1/users/{user}/repos", h.RegisterRepo)
	mux.HandleFunc("PUT /api/v1/users/{user}/repos", h.SyncUserRepos)
	mux.HandleFunc("DELETE /api/v1/users/{user}/repos/{repoID}", h.RemoveUserFromRepo)
	mux.HandleFunc("PUT /api/v1/users/{user}/token", h.SaveToken)
	mux.HandleFunc("DELETE /api/v1/users/{user}/token", h.DeleteToken)
	mux.HandleFunc("DELETE /api/v1/repos/{repoID}", h.RemoveRepo)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// ListUserRepos returns every repository the user is registered for.
func (h *Handler) ListUserRepos(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")

	repos, err := h.dir.FindAllReposByUser(r.Context(), userID)
	if err != nil {
		h.writeDirectoryError(w, err)
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepoResponse(repo))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RegisterRepo adds the user to a repository, creating the record and
// scheduling its webhook when the repository is new.
func (h *Handler) RegisterRepo(w http.ResponseWriter, r *http.Request) {
	var req RegisterRepoRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, err := h.dir.GetOrInsertRepo(r.Context(), req.params(r.PathValue("user")))
	if err != nil {
		h.writeDirectoryError(w, err)
		return
	}

	status := http.StatusOK
	if m.Created {
		status = http.StatusCreated
	}

	writeJSON(w, status, MembershipResponse{
		Repo:      toRepoResponse(m.Repo),
		Created:   m.Created,
		UserAdded: m.UserAdded,
	})
}

// SyncUserRepos replaces the user's repository set with the request body.
func (h *Handler) SyncUserRepos(w http.ResponseWriter, r *http.Request) {
	var req SyncReposRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID := r.PathValue("user")
	desired := make([]application.RepoParams, 0, len(req.Repos))
	for _, repo := range req.Repos {
		desired = append(desired, repo.params(userID))
	}

	res, err := h.dir.SyncUserRepos(r.Context(), userID, desired)
	if err != nil && res.Unchanged == nil {
		// Listing the current set failed; nothing was changed.
		h.writeDirectoryError(w, err)
		return
	}

	resp := toSyncResponse(res)
	if err != nil {
		h.logger.Warn("sync completed with errors", "user_id", userID, "error", err)
		resp.Errors = splitJoined(err)
	}

	writeJSON(w, http.StatusOK, resp)
}

// RemoveUserFromRepo removes the user from a repository. The repository is
// deleted when its last user leaves.
func (h *Handler) RemoveUserFromRepo(w http.ResponseWriter, r *http.Request) {
	repoID, ok := parseRepoID(w, r)
	if !ok {
		return
	}

	removal, err := h.dir.RemoveUserFromRepo(r.Context(), r.PathValue("user"), repoID, r.URL.Query().Get("html_url"))
	if err != nil {
		h.writeDirectoryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RemovalResponse{
		Remaining:   removal.Remaining,
		RepoDeleted: removal.RepoDeleted,
	})
}

// RemoveRepo deletes a repository regardless of its users. The user query
// parameter names whose token removes the webhook.
func (h *Handler) RemoveRepo(w http.ResponseWriter, r *http.Request) {
	repoID, ok := parseRepoID(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	if err := h.dir.RemoveRepo(r.Context(), userID, repoID, r.URL.Query().Get("html_url")); err != nil {
		h.writeDirectoryError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SaveToken stores the access token used for the user's webhook calls.
func (h *Handler) SaveToken(w http.ResponseWriter, r *http.Request) {
	var req SaveTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.dir.SaveUserToken(r.Context(), r.PathValue("user"), req.Token); err != nil {
		h.writeDirectoryError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteToken forgets the user's access token.
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.DeleteUser(r.Context(), r.PathValue("user")); err != nil {
		h.writeDirectoryError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// decode reads and validates a JSON body into v. On failure it writes a 400
// response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, validationMessage(verrs))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	return true
}

// writeDirectoryError maps directory errors to HTTP responses.
func (h *Handler) writeDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, driven.ErrRepoNotFound):
		writeError(w, http.StatusNotFound, "repository not found")
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		writeError(w, http.StatusServiceUnavailable, "token storage is not configured")
	default:
		h.logger.Error("directory operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseRepoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	repoID, err := strconv.ParseInt(r.PathValue("repoID"), 10, 64)
	if err != nil || repoID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid repository ID")
		return 0, false
	}
	return repoID, true
}

// validationMessage renders field errors as "field: rule" pairs.
func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Drop the leading struct name: "SyncReposRequest.repos[0].name".
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		parts = append(parts, fmt.Sprintf("%s: %s", field, fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// splitJoined flattens an errors.Join result into its messages.
func splitJoined(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		out := make([]string, 0, len(errs))
		for _, e := range errs {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
