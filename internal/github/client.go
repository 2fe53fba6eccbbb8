package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v81/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Client bundles the REST and GraphQL clients for one set of credentials.
type Client struct {
	REST    *gh.Client
	GraphQL *githubv4.Client
}

// ClientOptions configure client construction.
type ClientOptions struct {
	// Token is the access token to authenticate with.
	Token string

	// BaseURL overrides the API endpoint, used for tests and GitHub
	// Enterprise. Empty means api.github.com.
	BaseURL string
}

// NewClient builds an authenticated client pair.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("a GitHub access token is required")
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	httpClient := oauth2.NewClient(context.Background(), source)

	rest := gh.NewClient(httpClient)
	graphql := githubv4.NewClient(httpClient)

	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		var err error
		rest, err = rest.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("failed to configure API base URL: %w", err)
		}
		graphql = githubv4.NewEnterpriseClient(strings.TrimRight(base, "/")+"/graphql", httpClient)
	}

	return &Client{REST: rest, GraphQL: graphql}, nil
}

// NewClientFromHTTP builds a client pair over an existing HTTP client and
// base URL. Used by tests with httptest servers.
func NewClientFromHTTP(httpClient *http.Client, baseURL string) (*Client, error) {
	rest, err := gh.NewClient(httpClient).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, err
	}
	graphql := githubv4.NewEnterpriseClient(strings.TrimRight(baseURL, "/")+"/graphql", httpClient)
	return &Client{REST: rest, GraphQL: graphql}, nil
}
