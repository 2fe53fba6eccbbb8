package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
)

const defaultNuGetBaseURL = "https://azuresearch-usnc.nuget.org"

// NuGet looks up package ownership through the NuGet search service.
type NuGet struct {
	baseURL string
	client  *http.Client
}

// NewNuGet builds a NuGet registry. An empty baseURL uses the public
// search service.
func NewNuGet(baseURL string, client *http.Client) *NuGet {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultNuGetBaseURL
	}
	return &NuGet{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultHTTPClient(client),
	}
}

// Ecosystem returns the NuGet ecosystem.
func (r *NuGet) Ecosystem() trust.Ecosystem {
	return trust.EcosystemNuGet
}

type nugetSearchResult struct {
	Data []struct {
		ID       string   `json:"id"`
		Owners   []string `json:"owners"`
		Verified bool     `json:"verified"`
	} `json:"data"`
}

// GetPackageOwners returns the owner profiles of the package.
func (r *NuGet) GetPackageOwners(ctx context.Context, _ github.RepositoryID, id, version string) ([]string, error) {
	query := url.Values{}
	query.Set("q", "packageid:"+id)
	query.Set("prerelease", "true")
	query.Set("semVerLevel", "2.0.0")
	requestURL := r.baseURL + "/query?" + query.Encode()

	var payload nugetSearchResult
	if err := getJSON(ctx, r.client, requestURL, &payload); err != nil {
		return nil, fmt.Errorf("nuget lookup for %s@%s: %w", id, version, err)
	}

	for _, result := range payload.Data {
		if strings.EqualFold(result.ID, id) {
			return result.Owners, nil
		}
	}
	return nil, nil
}

// AreOwnersTrusted always abstains; package verification is a per-prefix
// signal, not an owner-set one.
func (r *NuGet) AreOwnersTrusted(context.Context, []string) (bool, error) {
	return false, nil
}
