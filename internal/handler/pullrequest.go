package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gh "github.com/google/go-github/v81/github"
	"github.com/shurcooL/githubv4"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

// PullRequestOptions configure automatic review and merge of dependency
// update pull requests.
type PullRequestOptions struct {
	// Approve submits an approving review for trusted pull requests.
	Approve bool

	// ApproveComment is an optional comment to attach to the review.
	ApproveComment string

	// Automerge enables the platform's auto-merge for trusted pull
	// requests.
	Automerge bool

	// AutomergeLabel is the label a collaborator applies to opt a pull
	// request into the automatic flow.
	AutomergeLabel string

	// RequiredLabels must all be present when the automerge label is
	// applied.
	RequiredLabels []string

	// TrustedUsers may author pull requests that are auto-approved.
	TrustedUsers []string

	// IgnoreRepositories are "owner/name" repositories excluded from the
	// automatic flow.
	IgnoreRepositories []string
}

// PullRequest approves and auto-merges trusted dependency updates.
type PullRequest struct {
	client  *github.Client
	engine  *trust.Engine
	opts    PullRequestOptions
	trusted map[string]struct{}
	ignored map[string]struct{}
	logger  *slog.Logger
}

// NewPullRequest builds the pull_request handler.
func NewPullRequest(client *github.Client, engine *trust.Engine, opts PullRequestOptions, logger *slog.Logger) *PullRequest {
	ignored := make(map[string]struct{}, len(opts.IgnoreRepositories))
	for _, repository := range opts.IgnoreRepositories {
		ignored[strings.ToLower(strings.TrimSpace(repository))] = struct{}{}
	}
	return &PullRequest{
		client:  client,
		engine:  engine,
		opts:    opts,
		trusted: loginSet(opts.TrustedUsers),
		ignored: ignored,
		logger:  logger,
	}
}

// Handle processes opened and labeled pull requests.
func (h *PullRequest) Handle(ctx context.Context, event *webhook.Event) error {
	payload, ok := event.Payload.(*gh.PullRequestEvent)
	if !ok {
		return nil
	}

	switch event.Action {
	case "opened":
		return h.handleOpened(ctx, payload)
	case "labeled":
		return h.handleLabeled(ctx, payload)
	default:
		return nil
	}
}

func (h *PullRequest) handleOpened(ctx context.Context, payload *gh.PullRequestEvent) error {
	pull := payload.GetPullRequest()
	repository := github.NewRepositoryID(payload.GetRepo())
	issue := github.IssueID{Repository: repository, Number: pull.GetNumber()}
	log := h.logger.With("pull_request", issue.String())

	if pull.GetDraft() {
		log.DebugContext(ctx, "ignoring draft pull request")
		return nil
	}
	if _, ok := h.trusted[strings.ToLower(pull.GetUser().GetLogin())]; !ok {
		log.DebugContext(ctx, "author is not trusted", "author", pull.GetUser().GetLogin())
		return nil
	}
	if _, ok := h.ignored[strings.ToLower(repository.String())]; ok {
		log.DebugContext(ctx, "repository is ignored")
		return nil
	}

	commit, _, err := h.client.REST.Repositories.GetCommit(ctx, repository.Owner, repository.Name, pull.GetHead().GetSHA(), nil)
	if err != nil {
		return fmt.Errorf("get head commit for %s: %w", issue.String(), err)
	}

	if !pullRequestIsTrusted(ctx, h.client, h.engine, repository, pull, commit.GetCommit().GetMessage(), h.logger) {
		log.InfoContext(ctx, "pull request is not a trusted dependency update")
		return nil
	}

	return h.approveAndMerge(ctx, repository, pull, log)
}

func (h *PullRequest) handleLabeled(ctx context.Context, payload *gh.PullRequestEvent) error {
	if h.opts.AutomergeLabel == "" || payload.GetLabel().GetName() != h.opts.AutomergeLabel {
		return nil
	}

	pull := payload.GetPullRequest()
	repository := github.NewRepositoryID(payload.GetRepo())
	issue := github.IssueID{Repository: repository, Number: pull.GetNumber()}
	log := h.logger.With("pull_request", issue.String())

	sender := payload.GetSender().GetLogin()
	collaborator, _, err := h.client.REST.Repositories.IsCollaborator(ctx, repository.Owner, repository.Name, sender)
	if err != nil {
		return fmt.Errorf("check collaborator %s: %w", sender, err)
	}
	if !collaborator {
		log.InfoContext(ctx, "label was applied by someone who is not a collaborator", "sender", sender)
		return nil
	}

	present := make(map[string]struct{}, len(pull.Labels))
	for _, label := range pull.Labels {
		present[label.GetName()] = struct{}{}
	}
	for _, required := range h.opts.RequiredLabels {
		if _, ok := present[required]; !ok {
			log.InfoContext(ctx, "required label is missing", "label", required)
			return nil
		}
	}

	return h.approveAndMerge(ctx, repository, pull, log)
}

func (h *PullRequest) approveAndMerge(ctx context.Context, repository github.RepositoryID, pull *gh.PullRequest, log *slog.Logger) error {
	if h.opts.Approve {
		log.InfoContext(ctx, "approving pull request")
		err := github.WithRetry(ctx, h.logger, "approve-pull-request", func(ctx context.Context) error {
			review := &gh.PullRequestReviewRequest{Event: gh.Ptr("APPROVE")}
			if h.opts.ApproveComment != "" {
				review.Body = gh.Ptr(h.opts.ApproveComment)
			}
			_, _, err := h.client.REST.PullRequests.CreateReview(ctx, repository.Owner, repository.Name, pull.GetNumber(), review)
			return err
		})
		if err != nil {
			return err
		}
	}

	if h.opts.Automerge {
		h.enableAutomerge(ctx, repository, pull, log)
	}
	return nil
}

// enableAutomerge turns on the platform's auto-merge via a GraphQL
// mutation, selecting the merge method by repository capability. When the
// mutation fails specifically because the pull request is already
// immediately mergeable it falls back to a direct merge; any other failure
// is logged and not retried.
func (h *PullRequest) enableAutomerge(ctx context.Context, repository github.RepositoryID, pull *gh.PullRequest, log *slog.Logger) {
	repo, _, err := h.client.REST.Repositories.Get(ctx, repository.Owner, repository.Name)
	if err != nil {
		log.WarnContext(ctx, "failed to determine repository merge capabilities", "error", err)
		repo = &gh.Repository{}
	}
	method := SelectMergeMethod(repo)

	var mutation struct {
		EnablePullRequestAutoMerge struct {
			PullRequest struct {
				Number githubv4.Int
			}
		} `graphql:"enablePullRequestAutoMerge(input: $input)"`
	}
	input := githubv4.EnablePullRequestAutoMergeInput{
		PullRequestID: githubv4.ID(pull.GetNodeID()),
		MergeMethod:   &method,
	}

	err = h.client.GraphQL.Mutate(ctx, &mutation, input, nil)
	if err == nil {
		log.InfoContext(ctx, "enabled auto-merge", "method", method)
		return
	}

	if !isAlreadyMergeable(err) {
		log.ErrorContext(ctx, "failed to enable auto-merge", "method", method, "error", err)
		return
	}

	log.InfoContext(ctx, "pull request is already mergeable; merging directly")
	_, _, err = h.client.REST.PullRequests.Merge(ctx, repository.Owner, repository.Name, pull.GetNumber(), "", &gh.PullRequestOptions{
		MergeMethod: restMergeMethod(method),
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to merge pull request directly", "method", method, "error", err)
	}
}

// SelectMergeMethod picks the merge method by repository capability, in
// priority order merge commit, squash, rebase, defaulting to merge commit.
func SelectMergeMethod(repository *gh.Repository) githubv4.PullRequestMergeMethod {
	switch {
	case repository.GetAllowMergeCommit():
		return githubv4.PullRequestMergeMethodMerge
	case repository.GetAllowSquashMerge():
		return githubv4.PullRequestMergeMethodSquash
	case repository.GetAllowRebaseMerge():
		return githubv4.PullRequestMergeMethodRebase
	default:
		return githubv4.PullRequestMergeMethodMerge
	}
}

func restMergeMethod(method githubv4.PullRequestMergeMethod) string {
	switch method {
	case githubv4.PullRequestMergeMethodSquash:
		return "squash"
	case githubv4.PullRequestMergeMethodRebase:
		return "rebase"
	default:
		return "merge"
	}
}

// isAlreadyMergeable classifies the specific mutation failure that means
// the pull request has no pending requirements left.
func isAlreadyMergeable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Pull request is in clean status")
}
