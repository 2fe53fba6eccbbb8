package handler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	gh "github.com/google/go-github/v81/github"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

// CheckSuiteOptions configure failed check suite retries.
type CheckSuiteOptions struct {
	// RerunFailedChecks are regular expressions a failed check's name must
	// match to be retried.
	RerunFailedChecks []string

	// RerunFailedChecksAttempts caps how often a named check is retried.
	RerunFailedChecksAttempts int

	// TrustedUsers may author pull requests whose checks are retried.
	TrustedUsers []string
}

// CheckSuite retries failing check suites for trusted pull requests.
type CheckSuite struct {
	client   *github.Client
	patterns []*regexp.Regexp
	attempts int
	trusted  map[string]struct{}
	logger   *slog.Logger
}

// NewCheckSuite builds the check_suite handler.
func NewCheckSuite(client *github.Client, opts CheckSuiteOptions, logger *slog.Logger) (*CheckSuite, error) {
	patterns := make([]*regexp.Regexp, 0, len(opts.RerunFailedChecks))
	for _, pattern := range opts.RerunFailedChecks {
		expr, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid check name pattern %q: %w", pattern, err)
		}
		patterns = append(patterns, expr)
	}
	return &CheckSuite{
		client:   client,
		patterns: patterns,
		attempts: opts.RerunFailedChecksAttempts,
		trusted:  loginSet(opts.TrustedUsers),
		logger:   logger,
	}, nil
}

// Handle retries the failed jobs of an eligible check suite.
func (h *CheckSuite) Handle(ctx context.Context, event *webhook.Event) error {
	payload, ok := event.Payload.(*gh.CheckSuiteEvent)
	if !ok || event.Action != "completed" {
		return nil
	}

	suite := payload.GetCheckSuite()
	repository := github.NewRepositoryID(payload.GetRepo())
	log := h.logger.With("repository", repository.String(), "check_suite", suite.GetID())

	if suite.GetConclusion() != "failure" {
		log.DebugContext(ctx, "check suite did not fail", "conclusion", suite.GetConclusion())
		return nil
	}
	if h.attempts < 1 || len(h.patterns) == 0 {
		log.DebugContext(ctx, "check suite retries are not configured")
		return nil
	}
	if !suite.GetRerequestable() {
		log.InfoContext(ctx, "check suite cannot be re-run")
		return nil
	}

	if eligible, err := h.pullRequestAuthorTrusted(ctx, repository, suite); err != nil {
		return err
	} else if !eligible {
		log.InfoContext(ctx, "check suite is not associated with a trusted author")
		return nil
	}

	names, err := h.retriableCheckNames(ctx, repository, suite.GetID())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		log.InfoContext(ctx, "no failed checks are eligible for a retry")
		return nil
	}

	return h.rerun(ctx, repository, suite.GetID(), log)
}

func (h *CheckSuite) pullRequestAuthorTrusted(ctx context.Context, repository github.RepositoryID, suite *gh.CheckSuite) (bool, error) {
	pulls := suite.PullRequests
	if len(pulls) == 0 {
		return true, nil
	}

	pull, _, err := h.client.REST.PullRequests.Get(ctx, repository.Owner, repository.Name, pulls[0].GetNumber())
	if err != nil {
		return false, fmt.Errorf("get pull request %d: %w", pulls[0].GetNumber(), err)
	}

	author := pull.GetUser().GetLogin()
	if _, ok := h.trusted[strings.ToLower(author)]; ok {
		return true, nil
	}

	member, _, err := h.client.REST.Organizations.IsMember(ctx, repository.Owner, author)
	if err != nil {
		return false, fmt.Errorf("check organization membership for %s: %w", author, err)
	}
	return member, nil
}

// retriableCheckNames returns the names whose latest completed run failed
// and matches a configured pattern, rejecting the suite entirely if any
// such name has already used up its attempts. Attempt counts come from the
// latest run per name so a suite whose failing run changed is not counted
// against the old run's name.
func (h *CheckSuite) retriableCheckNames(ctx context.Context, repository github.RepositoryID, suiteID int64) ([]string, error) {
	opts := &gh.ListCheckRunsOptions{
		Filter:      gh.Ptr("all"),
		Status:      gh.Ptr("completed"),
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	byName := make(map[string][]*gh.CheckRun)
	for {
		runs, resp, err := h.client.REST.Checks.ListCheckRunsCheckSuite(ctx, repository.Owner, repository.Name, suiteID, opts)
		if err != nil {
			return nil, fmt.Errorf("list check runs for suite %d: %w", suiteID, err)
		}
		for _, run := range runs.CheckRuns {
			byName[run.GetName()] = append(byName[run.GetName()], run)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	var names []string
	for name, runs := range byName {
		latest := runs[0]
		for _, run := range runs[1:] {
			if run.GetID() > latest.GetID() {
				latest = run
			}
		}
		if latest.GetConclusion() != "failure" || !h.nameMatches(name) {
			continue
		}
		if len(runs) > h.attempts {
			h.logger.InfoContext(ctx, "check has failed too many times to retry",
				"repository", repository.String(),
				"check", name,
				"attempts", len(runs))
			return nil, nil
		}
		names = append(names, name)
	}
	return names, nil
}

func (h *CheckSuite) nameMatches(name string) bool {
	for _, pattern := range h.patterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// rerun re-requests the whole suite when it has no associated workflow run,
// otherwise reruns only the failed jobs of that run.
func (h *CheckSuite) rerun(ctx context.Context, repository github.RepositoryID, suiteID int64, log *slog.Logger) error {
	runs, _, err := h.client.REST.Actions.ListRepositoryWorkflowRuns(ctx, repository.Owner, repository.Name, &gh.ListWorkflowRunsOptions{
		CheckSuiteID: suiteID,
		ListOptions:  gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		return fmt.Errorf("list workflow runs for suite %d: %w", suiteID, err)
	}

	if runs.GetTotalCount() == 0 || len(runs.WorkflowRuns) == 0 {
		log.InfoContext(ctx, "re-requesting check suite")
		return github.WithRetry(ctx, h.logger, "rerequest-check-suite", func(ctx context.Context) error {
			_, err := h.client.REST.Checks.ReRequestCheckSuite(ctx, repository.Owner, repository.Name, suiteID)
			return err
		})
	}

	run := runs.WorkflowRuns[0]
	log.InfoContext(ctx, "re-running failed jobs", "workflow_run", run.GetID())
	return github.WithRetry(ctx, h.logger, "rerun-failed-jobs", func(ctx context.Context) error {
		_, err := h.client.REST.Actions.RerunFailedJobsByID(ctx, repository.Owner, repository.Name, run.GetID())
		return err
	})
}

func loginSet(logins []string) map[string]struct{} {
	set := make(map[string]struct{}, len(logins))
	for _, login := range logins {
		set[strings.ToLower(strings.TrimSpace(login))] = struct{}{}
	}
	return set
}
