package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
)

const defaultRubyGemsBaseURL = "https://rubygems.org"

// RubyGems looks up gem ownership through the rubygems.org API.
type RubyGems struct {
	baseURL string
	client  *http.Client

	mu      sync.Mutex
	lastMFA map[string]bool
}

// NewRubyGems builds a RubyGems registry. An empty baseURL uses
// rubygems.org.
func NewRubyGems(baseURL string, client *http.Client) *RubyGems {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultRubyGemsBaseURL
	}
	return &RubyGems{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultHTTPClient(client),
		lastMFA: make(map[string]bool),
	}
}

// Ecosystem returns the Ruby ecosystem.
func (r *RubyGems) Ecosystem() trust.Ecosystem {
	return trust.EcosystemRuby
}

type gemOwner struct {
	Handle string `json:"handle"`
	MFA    bool   `json:"mfa"`
}

// GetPackageOwners returns the handles of the gem's owners.
func (r *RubyGems) GetPackageOwners(ctx context.Context, _ github.RepositoryID, id, _ string) ([]string, error) {
	requestURL := fmt.Sprintf("%s/api/v1/gems/%s/owners.json", r.baseURL, url.PathEscape(id))

	var payload []gemOwner
	if err := getJSON(ctx, r.client, requestURL, &payload); err != nil {
		return nil, fmt.Errorf("rubygems lookup for %s: %w", id, err)
	}

	owners := make([]string, 0, len(payload))
	r.mu.Lock()
	for _, owner := range payload {
		if owner.Handle == "" {
			continue
		}
		owners = append(owners, owner.Handle)
		r.lastMFA[strings.ToLower(owner.Handle)] = owner.MFA
	}
	r.mu.Unlock()

	return owners, nil
}

// AreOwnersTrusted reports true when every owner in the set had multi-factor
// authentication enabled in the most recent lookup.
func (r *RubyGems) AreOwnersTrusted(_ context.Context, owners []string) (bool, error) {
	if len(owners) == 0 {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, owner := range owners {
		if !r.lastMFA[strings.ToLower(owner)] {
			return false, nil
		}
	}
	return true, nil
}
