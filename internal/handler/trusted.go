package handler

import (
	"context"
	"log/slog"

	gh "github.com/google/go-github/v81/github"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
)

// pullRequestIsTrusted decides whether a pull request is a trusted
// dependency update. The commit-message analysis runs first; if it cannot
// establish trust, the pull request's unified diff is parsed structurally
// and each updated package is checked against the persisted allow-list.
func pullRequestIsTrusted(
	ctx context.Context,
	client *github.Client,
	engine *trust.Engine,
	repository github.RepositoryID,
	pullRequest *gh.PullRequest,
	commitMessage string,
	logger *slog.Logger,
) bool {
	branchRef := pullRequest.GetHead().GetRef()

	if engine.IsTrustedDependencyUpdate(ctx, repository, branchRef, commitMessage) {
		return true
	}

	ecosystem := trust.ParseEcosystem(branchRef)
	if ecosystem == trust.EcosystemUnknown || ecosystem == trust.EcosystemUnsupported {
		return false
	}

	diff, _, err := client.REST.PullRequests.GetRaw(
		ctx,
		repository.Owner,
		repository.Name,
		pullRequest.GetNumber(),
		gh.RawOptions{Type: gh.Diff})
	if err != nil {
		logger.WarnContext(ctx, "failed to fetch pull request diff",
			"pull_request", github.IssueID{Repository: repository, Number: pullRequest.GetNumber()}.String(),
			"error", err)
		return false
	}

	updates, ok := trust.TryParseUpdatedPackages(diff)
	if !ok {
		return false
	}

	store := engine.Store()
	for name, update := range updates {
		trusted, err := store.IsTrusted(ctx, ecosystem, name, update.To)
		if err != nil {
			logger.WarnContext(ctx, "failed to query trust store for updated package",
				"package", name,
				"version", update.To,
				"error", err)
			return false
		}
		if !trusted {
			logger.DebugContext(ctx, "updated package is not in the allow-list",
				"package", name,
				"from", update.From,
				"to", update.To)
			return false
		}
	}
	return true
}
