// Package github implements the HookRegistrar port using the go-github library.
package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/reposcan/internal/domain/diff"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HookRegistrar = (*Registrar)(nil)

// Per-token clients are kept for a bounded number of recently used tokens.
const (
	clientCacheSize = 256
	clientCacheTTL  = time.Hour
)

// HookConfig describes the webhook the registrar installs on each repository.
type HookConfig struct {
	CallbackURL string   // Delivery endpoint; identifies our hook among others.
	Secret      string   // Optional HMAC secret shared with the receiver.
	Events      []string // Defaults to ["push"].
	BaseURL     string   // Optional GitHub Enterprise API URL.
}

// Registrar implements driven.HookRegistrar. Each user token gets its own
// go-github client so the HTTP cache never serves one user's responses to
// another. Clients are cached by a SHA-256 digest of the token.
type Registrar struct {
	cfg     HookConfig
	baseURL *url.URL
	newHTTP func() *http.Client
	clients *expirable.LRU[string, *gh.Client]
	logger  *slog.Logger
}

// NewRegistrar creates a Registrar whose per-token clients use the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with token auth)
func NewRegistrar(cfg HookConfig, logger *slog.Logger) (*Registrar, error) {
	newHTTP := func() *http.Client {
		cacheTransport := httpcache.NewMemoryCacheTransport()
		return github_ratelimit.NewClient(cacheTransport)
	}
	return newRegistrar(cfg, cfg.BaseURL, newHTTP, logger)
}

// NewRegistrarWithHTTPClient creates a Registrar with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewRegistrarWithHTTPClient(httpClient *http.Client, baseURL string, cfg HookConfig, logger *slog.Logger) (*Registrar, error) {
	return newRegistrar(cfg, baseURL, func() *http.Client { return httpClient }, logger)
}

func newRegistrar(cfg HookConfig, baseURL string, newHTTP func() *http.Client, logger *slog.Logger) (*Registrar, error) {
	if cfg.CallbackURL == "" {
		return nil, fmt.Errorf("hook callback URL is required")
	}
	if len(cfg.Events) == 0 {
		cfg.Events = []string{"push"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registrar{
		cfg:     cfg,
		newHTTP: newHTTP,
		clients: expirable.NewLRU[string, *gh.Client](clientCacheSize, nil, clientCacheTTL),
		logger:  logger,
	}

	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		r.baseURL = u
	}

	return r, nil
}

// Register installs the webhook on the repository at htmlURL unless a hook
// with the callback URL already exists.
func (r *Registrar) Register(ctx context.Context, htmlURL, token string) error {
	owner, repo, err := splitHTMLURL(htmlURL)
	if err != nil {
		return err
	}
	client := r.clientFor(token)

	hooks, err := r.listHooks(ctx, client, owner, repo)
	if err != nil {
		return err
	}

	existing := make([]string, 0, len(hooks))
	for _, h := range hooks {
		existing = append(existing, h.GetConfig().GetURL())
	}
	if d := diff.Compare([]string{r.cfg.CallbackURL}, existing); len(d.Intersect) > 0 {
		r.logger.Debug("webhook already registered", "repo", owner+"/"+repo)
		return nil
	}

	hookCfg := &gh.HookConfig{
		URL:         gh.Ptr(r.cfg.CallbackURL),
		ContentType: gh.Ptr("json"),
		InsecureSSL: gh.Ptr("0"),
	}
	if r.cfg.Secret != "" {
		hookCfg.Secret = gh.Ptr(r.cfg.Secret)
	}

	created, resp, err := client.Repositories.CreateHook(ctx, owner, repo, &gh.Hook{
		Name:   gh.Ptr("web"),
		Active: gh.Ptr(true),
		Events: r.cfg.Events,
		Config: hookCfg,
	})
	if err != nil {
		return fmt.Errorf("creating hook for %s/%s: %w", owner, repo, classify(err))
	}

	logRateLimit(r.logger, resp, owner+"/"+repo+"/create-hook")
	r.logger.Info("webhook registered", "repo", owner+"/"+repo, "hook_id", created.GetID())

	return nil
}

// Deregister deletes every hook on the repository that points at the
// callback URL. A repository that no longer exists or is no longer visible
// to the token has nothing to remove.
func (r *Registrar) Deregister(ctx context.Context, htmlURL, token string) error {
	owner, repo, err := splitHTMLURL(htmlURL)
	if err != nil {
		return err
	}
	client := r.clientFor(token)

	hooks, err := r.listHooks(ctx, client, owner, repo)
	if err != nil {
		if isNotFound(err) {
			r.logger.Info("repository not reachable, no webhook to remove", "repo", owner+"/"+repo)
			return nil
		}
		return err
	}

	for _, h := range hooks {
		if h.GetConfig().GetURL() != r.cfg.CallbackURL {
			continue
		}
		if _, err := client.Repositories.DeleteHook(ctx, owner, repo, h.GetID()); err != nil && !isNotFound(err) {
			return fmt.Errorf("deleting hook %d for %s/%s: %w", h.GetID(), owner, repo, classify(err))
		}
		r.logger.Info("webhook removed", "repo", owner+"/"+repo, "hook_id", h.GetID())
	}

	return nil
}

// listHooks retrieves all hooks of a repository, following pagination.
func (r *Registrar) listHooks(ctx context.Context, client *gh.Client, owner, repo string) ([]*gh.Hook, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var all []*gh.Hook

	for {
		hooks, resp, err := client.Repositories.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing hooks for %s/%s (page %d): %w", owner, repo, opts.Page, classify(err))
		}

		logRateLimit(r.logger, resp, owner+"/"+repo+"/hooks")
		all = append(all, hooks...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// clientFor returns the cached client for token, creating it on first use.
// Two callers racing on a new token may each build a client; the last one
// added stays cached.
func (r *Registrar) clientFor(token string) *gh.Client {
	key := tokenKey(token)
	if c, ok := r.clients.Get(key); ok {
		return c
	}

	c := gh.NewClient(r.newHTTP()).WithAuthToken(token)
	if r.baseURL != nil {
		c.BaseURL = r.baseURL
	}
	r.clients.Add(key, c)

	return c
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// logRateLimit logs rate limit information from a GitHub API response.
func logRateLimit(logger *slog.Logger, resp *gh.Response, op string) {
	if resp == nil {
		return
	}
	logger.Debug("github api call",
		"op", op,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)
	if resp.Rate.Limit > 0 && resp.Rate.Remaining < resp.Rate.Limit/10 {
		logger.Warn("github rate limit running low",
			"op", op,
			"remaining", resp.Rate.Remaining,
			"reset", resp.Rate.Reset.Time,
		)
	}
}

// classify marks GitHub responses that no retry can change: a rejected
// token, a repository the token cannot see, or a hook the API refuses.
func classify(err error) error {
	var ghErr *gh.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return err
	}
	switch ghErr.Response.StatusCode {
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", driven.ErrPermanentHookFailure, err)
	}
	return err
}

func isNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

// splitHTMLURL extracts owner and repository from a browsable URL such as
// "https://github.com/owner/repo". A trailing ".git" or slash is tolerated.
func splitHTMLURL(htmlURL string) (string, string, error) {
	u, err := url.Parse(htmlURL)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%w: invalid repository URL %q: expected https://host/owner/repo", driven.ErrPermanentHookFailure, htmlURL)
	}

	path := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: invalid repository URL %q: expected https://host/owner/repo", driven.ErrPermanentHookFailure, htmlURL)
	}

	return parts[0], parts[1], nil
}
