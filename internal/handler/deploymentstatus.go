package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gh "github.com/google/go-github/v81/github"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

// DeploymentStatusOptions configure automatic deployment approval.
type DeploymentStatusOptions struct {
	// Environments are the target environments eligible for automatic
	// approval.
	Environments []string

	// TrustedAuthors are commit authors whose commits never need a trust
	// engine evaluation.
	TrustedAuthors []string
}

// DeploymentStatus approves waiting deployments whose commits since the
// last successful deployment are all trusted.
type DeploymentStatus struct {
	client       *github.Client
	reviewer     *github.Client
	engine       *trust.Engine
	rules        []DeploymentRule
	environments map[string]struct{}
	authors      map[string]struct{}
	logger       *slog.Logger
}

// NewDeploymentStatus builds the deployment_status handler. reviewer is
// the optional delegated reviewer's client, used when the installation
// itself is not permitted to approve.
func NewDeploymentStatus(
	client *github.Client,
	reviewer *github.Client,
	engine *trust.Engine,
	rules []DeploymentRule,
	opts DeploymentStatusOptions,
	logger *slog.Logger,
) *DeploymentStatus {
	environments := make(map[string]struct{}, len(opts.Environments))
	for _, environment := range opts.Environments {
		environments[strings.ToLower(strings.TrimSpace(environment))] = struct{}{}
	}
	return &DeploymentStatus{
		client:       client,
		reviewer:     reviewer,
		engine:       engine,
		rules:        rules,
		environments: environments,
		authors:      loginSet(opts.TrustedAuthors),
		logger:       logger,
	}
}

// Handle approves the pending deployment review if every gate passes.
func (h *DeploymentStatus) Handle(ctx context.Context, event *webhook.Event) error {
	payload, ok := event.Payload.(*gh.DeploymentStatusEvent)
	if !ok || event.Action != "created" {
		return nil
	}
	if payload.GetDeploymentStatus().GetState() != "waiting" {
		return nil
	}

	repository := github.NewRepositoryID(payload.GetRepo())
	deployment := payload.GetDeployment()
	environment := deployment.GetEnvironment()
	log := h.logger.With(
		"repository", repository.String(),
		"environment", environment,
		"deployment", deployment.GetID())

	if _, ok := h.environments[strings.ToLower(environment)]; !ok {
		log.DebugContext(ctx, "environment is not eligible for automatic approval")
		return nil
	}

	if !h.rulesApprove(ctx, payload, log) {
		return nil
	}

	active, err := h.findActiveDeployment(ctx, repository, deployment)
	if err != nil {
		return err
	}
	if active == nil {
		log.InfoContext(ctx, "no active deployment found to compare against")
		return nil
	}

	trusted, err := h.changesAreTrusted(ctx, repository, active, deployment, log)
	if err != nil {
		return err
	}
	if !trusted {
		return nil
	}

	return h.approvePendingDeployment(ctx, repository, environment, log)
}

// rulesApprove evaluates the ordered rule chain; the first non-abstaining
// rule decides.
func (h *DeploymentStatus) rulesApprove(ctx context.Context, payload *gh.DeploymentStatusEvent, log *slog.Logger) bool {
	for _, rule := range h.rules {
		switch rule.Evaluate(ctx, payload) {
		case Approve:
			log.DebugContext(ctx, "deployment approved by rule", "rule", rule.Name())
			return true
		case Reject:
			log.InfoContext(ctx, "deployment rejected by rule", "rule", rule.Name())
			return false
		case Abstain:
		}
	}
	log.InfoContext(ctx, "no deployment rule approved the deployment")
	return false
}

// findActiveDeployment scans the environment's deployment history for the
// most recent deployment preceding the pending one whose latest status is
// success.
func (h *DeploymentStatus) findActiveDeployment(ctx context.Context, repository github.RepositoryID, pending *gh.Deployment) (*gh.Deployment, error) {
	opts := &gh.DeploymentsListOptions{
		Environment: pending.GetEnvironment(),
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	for {
		deployments, resp, err := h.client.REST.Repositories.ListDeployments(ctx, repository.Owner, repository.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("list deployments for %s: %w", pending.GetEnvironment(), err)
		}
		for _, deployment := range deployments {
			if deployment.GetID() >= pending.GetID() {
				continue
			}
			active, err := h.deploymentIsActive(ctx, repository, deployment.GetID())
			if err != nil {
				return nil, err
			}
			if active {
				return deployment, nil
			}
		}
		if resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

func (h *DeploymentStatus) deploymentIsActive(ctx context.Context, repository github.RepositoryID, deploymentID int64) (bool, error) {
	statuses, _, err := h.client.REST.Repositories.ListDeploymentStatuses(ctx, repository.Owner, repository.Name, deploymentID, &gh.ListOptions{PerPage: 1})
	if err != nil {
		return false, fmt.Errorf("list statuses for deployment %d: %w", deploymentID, err)
	}
	return len(statuses) > 0 && statuses[0].GetState() == "success", nil
}

// changesAreTrusted diffs the active and pending deployments and requires
// every non-merge commit to come from a trusted author or be a trusted
// dependency update.
func (h *DeploymentStatus) changesAreTrusted(ctx context.Context, repository github.RepositoryID, active, pending *gh.Deployment, log *slog.Logger) (bool, error) {
	comparison, _, err := h.client.REST.Repositories.CompareCommits(ctx, repository.Owner, repository.Name, active.GetSHA(), pending.GetSHA(), &gh.ListOptions{PerPage: 100})
	if err != nil {
		return false, fmt.Errorf("compare %s...%s: %w", active.GetSHA(), pending.GetSHA(), err)
	}

	for _, commit := range comparison.Commits {
		if len(commit.Parents) > 1 {
			continue
		}

		author := strings.ToLower(commit.GetAuthor().GetLogin())
		if _, ok := h.authors[author]; ok {
			continue
		}
		if !h.commitIsTrusted(ctx, repository, commit) {
			log.InfoContext(ctx, "deployment contains an untrusted commit",
				"sha", commit.GetSHA(),
				"author", author)
			return false, nil
		}
	}
	return true, nil
}

func (h *DeploymentStatus) commitIsTrusted(ctx context.Context, repository github.RepositoryID, commit *gh.RepositoryCommit) bool {
	pulls, _, err := h.client.REST.PullRequests.ListPullRequestsWithCommit(ctx, repository.Owner, repository.Name, commit.GetSHA(), nil)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to find pull request for commit",
			"repository", repository.String(),
			"sha", commit.GetSHA(),
			"error", err)
		return false
	}
	if len(pulls) == 0 {
		return false
	}
	return pullRequestIsTrusted(ctx, h.client, h.engine, repository, pulls[0], commit.GetCommit().GetMessage(), h.logger)
}

// approvePendingDeployment locates the single pending review request for
// the environment among the waiting workflow runs and approves it, using
// the delegated reviewer's credentials if the installation cannot approve.
func (h *DeploymentStatus) approvePendingDeployment(ctx context.Context, repository github.RepositoryID, environment string, log *slog.Logger) error {
	runs, _, err := h.client.REST.Actions.ListRepositoryWorkflowRuns(ctx, repository.Owner, repository.Name, &gh.ListWorkflowRunsOptions{
		Status:      "waiting",
		ListOptions: gh.ListOptions{PerPage: 100},
	})
	if err != nil {
		return fmt.Errorf("list waiting workflow runs: %w", err)
	}

	for _, run := range runs.WorkflowRuns {
		pending, _, err := h.client.REST.Actions.GetPendingDeployments(ctx, repository.Owner, repository.Name, run.GetID())
		if err != nil {
			return fmt.Errorf("get pending deployments for run %d: %w", run.GetID(), err)
		}
		for _, review := range pending {
			if !strings.EqualFold(review.GetEnvironment().GetName(), environment) {
				continue
			}

			client := h.client
			if !review.GetCurrentUserCanApprove() && h.reviewer != nil {
				client = h.reviewer
			}

			log.InfoContext(ctx, "approving pending deployment", "workflow_run", run.GetID())
			return github.WithRetry(ctx, h.logger, "approve-pending-deployment", func(ctx context.Context) error {
				_, _, err := client.REST.Actions.PendingDeployments(ctx, repository.Owner, repository.Name, run.GetID(), &gh.PendingDeploymentsRequest{
					EnvironmentIDs: []int64{review.GetEnvironment().GetID()},
					State:          "approved",
					Comment:        "Automatically approved",
				})
				return err
			})
		}
	}

	log.InfoContext(ctx, "no pending deployment review found to approve")
	return nil
}
