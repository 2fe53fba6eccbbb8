// Package github constructs the authenticated platform API clients and the
// shared value types used as keys for logging and API calls.
package github

import (
	"fmt"

	gh "github.com/google/go-github/v81/github"
)

// RepositoryID identifies a repository by owner and name.
type RepositoryID struct {
	Owner string
	Name  string
}

// NewRepositoryID derives a RepositoryID from a webhook repository payload.
func NewRepositoryID(repository *gh.Repository) RepositoryID {
	return RepositoryID{
		Owner: repository.GetOwner().GetLogin(),
		Name:  repository.GetName(),
	}
}

// String returns "owner/name".
func (r RepositoryID) String() string {
	return r.Owner + "/" + r.Name
}

// IssueID identifies an issue or pull request within a repository.
type IssueID struct {
	Repository RepositoryID
	Number     int
}

// String returns "owner/name#number".
func (i IssueID) String() string {
	return fmt.Sprintf("%s#%d", i.Repository, i.Number)
}
