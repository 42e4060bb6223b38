package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/reposcan/internal/adapter/driven/github"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

const callbackURL = "https://scanner.example.com/hooks/github"

// hookJSON is a helper struct for building GitHub API hook responses.
type hookJSON struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Events []string       `json:"events"`
	Config hookConfigJSON `json:"config"`
}

type hookConfigJSON struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Secret      string `json:"secret,omitempty"`
}

// fakeHooks is an in-memory hooks endpoint for a single repository.
type fakeHooks struct {
	mu      sync.Mutex
	hooks   []hookJSON
	nextID  int64
	created []hookJSON
	deleted []string
	auth    []string
}

func (f *fakeHooks) handler(owner, repo string) http.Handler {
	mux := http.NewServeMux()
	base := "/repos/" + owner + "/" + repo + "/hooks"

	mux.HandleFunc("GET "+base, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.hooks)
	})

	mux.HandleFunc("POST "+base, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var h hookJSON
		if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.nextID++
		h.ID = f.nextID
		f.hooks = append(f.hooks, h)
		f.created = append(f.created, h)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(h)
	})

	mux.HandleFunc("DELETE "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// newTestRegistrar creates a Registrar backed by the given httptest handler.
func newTestRegistrar(t *testing.T, handler http.Handler, cfg ghAdapter.HookConfig) *ghAdapter.Registrar {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	reg, err := ghAdapter.NewRegistrarWithHTTPClient(server.Client(), server.URL+"/", cfg, nil)
	require.NoError(t, err)

	return reg
}

func TestRegister_CreatesHook(t *testing.T) {
	fake := &fakeHooks{}
	reg := newTestRegistrar(t, fake.handler("octocat", "hello-world"), ghAdapter.HookConfig{
		CallbackURL: callbackURL,
		Secret:      "s3cret",
	})

	err := reg.Register(context.Background(), "https://github.com/octocat/hello-world", "gho_token")
	require.NoError(t, err)

	require.Len(t, fake.created, 1)
	h := fake.created[0]
	assert.Equal(t, "web", h.Name)
	assert.True(t, h.Active)
	assert.Equal(t, []string{"push"}, h.Events)
	assert.Equal(t, callbackURL, h.Config.URL)
	assert.Equal(t, "json", h.Config.ContentType)
	assert.Equal(t, "s3cret", h.Config.Secret)
	assert.Equal(t, []string{"Bearer gho_token"}, fake.auth)
}

func TestRegister_Idempotent(t *testing.T) {
	fake := &fakeHooks{
		hooks: []hookJSON{
			{ID: 7, Name: "web", Config: hookConfigJSON{URL: "https://ci.example.com/hook"}},
			{ID: 8, Name: "web", Config: hookConfigJSON{URL: callbackURL}},
		},
	}
	reg := newTestRegistrar(t, fake.handler("octocat", "hello-world"), ghAdapter.HookConfig{CallbackURL: callbackURL})

	err := reg.Register(context.Background(), "https://github.com/octocat/hello-world", "gho_token")
	require.NoError(t, err)
	assert.Empty(t, fake.created, "existing hook with our callback URL should not be duplicated")
}

func TestRegister_CustomEvents(t *testing.T) {
	fake := &fakeHooks{}
	reg := newTestRegistrar(t, fake.handler("octocat", "hello-world"), ghAdapter.HookConfig{
		CallbackURL: callbackURL,
		Events:      []string{"push", "pull_request"},
	})

	require.NoError(t, reg.Register(context.Background(), "https://github.com/octocat/hello-world.git", "gho_token"))
	require.Len(t, fake.created, 1)
	assert.Equal(t, []string{"push", "pull_request"}, fake.created[0].Events)
}

func TestRegister_APIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Must have admin rights to Repository."}`))
	})
	reg := newTestRegistrar(t, handler, ghAdapter.HookConfig{CallbackURL: callbackURL})

	err := reg.Register(context.Background(), "https://github.com/octocat/hello-world", "gho_token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "octocat/hello-world")
	assert.NotErrorIs(t, err, driven.ErrPermanentHookFailure, "403 may be a rate limit and is retried")
}

func TestRegister_PermanentStatuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"bad credentials", http.StatusUnauthorized, true},
		{"repository not visible", http.StatusNotFound, true},
		{"hook rejected", http.StatusUnprocessableEntity, true},
		{"server error", http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})
			reg := newTestRegistrar(t, handler, ghAdapter.HookConfig{CallbackURL: callbackURL})

			err := reg.Register(context.Background(), "https://github.com/octocat/hello-world", "gho_token")
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, driven.ErrPermanentHookFailure))
		})
	}
}

func TestRegister_CreateRejectedIsPermanent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octocat/hello-world/hooks", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("POST /repos/octocat/hello-world/hooks", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	})
	reg := newTestRegistrar(t, mux, ghAdapter.HookConfig{CallbackURL: callbackURL})

	err := reg.Register(context.Background(), "https://github.com/octocat/hello-world", "gho_revoked")
	assert.ErrorIs(t, err, driven.ErrPermanentHookFailure)
}

func TestRegister_InvalidURL(t *testing.T) {
	reg := newTestRegistrar(t, http.NotFoundHandler(), ghAdapter.HookConfig{CallbackURL: callbackURL})

	for _, bad := range []string{"", "not a url", "https://github.com/onlyowner", "https://github.com/a/b/c"} {
		err := reg.Register(context.Background(), bad, "gho_token")
		assert.ErrorIs(t, err, driven.ErrPermanentHookFailure, "url %q should be rejected", bad)

		err = reg.Deregister(context.Background(), bad, "gho_token")
		assert.ErrorIs(t, err, driven.ErrPermanentHookFailure, "url %q should be rejected", bad)
	}
}

func TestDeregister_DeletesMatchingHooksOnly(t *testing.T) {
	fake := &fakeHooks{
		hooks: []hookJSON{
			{ID: 7, Name: "web", Config: hookConfigJSON{URL: "https://ci.example.com/hook"}},
			{ID: 8, Name: "web", Config: hookConfigJSON{URL: callbackURL}},
		},
	}
	reg := newTestRegistrar(t, fake.handler("octocat", "hello-world"), ghAdapter.HookConfig{CallbackURL: callbackURL})

	err := reg.Deregister(context.Background(), "https://github.com/octocat/hello-world", "gho_token")
	require.NoError(t, err)
	assert.Equal(t, []string{"8"}, fake.deleted)
}

func TestDeregister_RepoGone(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	reg := newTestRegistrar(t, handler, ghAdapter.HookConfig{CallbackURL: callbackURL})

	err := reg.Deregister(context.Background(), "https://github.com/octocat/gone", "gho_token")
	assert.NoError(t, err, "missing repository has no hook to remove")
}

func TestNewRegistrar_RequiresCallbackURL(t *testing.T) {
	_, err := ghAdapter.NewRegistrar(ghAdapter.HookConfig{}, nil)
	assert.Error(t, err)
}
