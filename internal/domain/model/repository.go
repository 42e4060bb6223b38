package model

import (
	"net/url"
	"strings"
	"time"
)

// ResultSet is an opaque scan payload. The directory never inspects it; the
// scanning processes that fill it own its shape.
type ResultSet map[string]any

// Repository represents a source repository registered for scanning by one or
// more users. ID is the host's numeric repository identifier.
type Repository struct {
	ID            int64
	GitURL        string
	Name          string
	ScanResults   ResultSet
	RetireResults ResultSet
	ParseResults  ResultSet
	Users         []string
	CreatedAt     time.Time
}

// NewRepository builds a fresh record seeded with a single user and empty
// result payloads.
func NewRepository(id int64, gitURL, name, userID string) Repository {
	return Repository{
		ID:            id,
		GitURL:        gitURL,
		Name:          name,
		ScanResults:   ResultSet{},
		RetireResults: ResultSet{},
		ParseResults:  ResultSet{},
		Users:         []string{userID},
	}
}

// HasUser reports whether userID is associated with the repository.
func (r Repository) HasUser(userID string) bool {
	for _, u := range r.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// HTMLURL derives the browsable URL from the clone URL, e.g.
// "git://github.com/reactjs/react-rails.git" becomes
// "https://github.com/reactjs/react-rails". Returns "" when GitURL cannot be
// parsed or has no host.
func (r Repository) HTMLURL() string {
	if r.GitURL == "" {
		return ""
	}

	// scp-like syntax: git@github.com:owner/repo.git
	if !strings.Contains(r.GitURL, "://") {
		at := strings.Index(r.GitURL, "@")
		colon := strings.Index(r.GitURL, ":")
		if at < 0 || colon < at {
			return ""
		}
		host := r.GitURL[at+1 : colon]
		path := strings.TrimSuffix(strings.Trim(r.GitURL[colon+1:], "/"), ".git")
		if host == "" || path == "" {
			return ""
		}
		return "https://" + host + "/" + path
	}

	u, err := url.Parse(r.GitURL)
	if err != nil || u.Host == "" {
		return ""
	}

	path := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	if path == "" {
		return ""
	}

	return "https://" + u.Hostname() + "/" + path
}
