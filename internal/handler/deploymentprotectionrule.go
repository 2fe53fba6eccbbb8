package handler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	gh "github.com/google/go-github/v81/github"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

// DeploymentProtectionRule approves custom deployment protection rule
// callbacks when the feature is enabled.
type DeploymentProtectionRule struct {
	client  *github.Client
	enabled bool
	logger  *slog.Logger
}

// NewDeploymentProtectionRule builds the deployment_protection_rule handler.
func NewDeploymentProtectionRule(client *github.Client, enabled bool, logger *slog.Logger) *DeploymentProtectionRule {
	return &DeploymentProtectionRule{client: client, enabled: enabled, logger: logger}
}

var runIDFromCallback = regexp.MustCompile(`/actions/runs/(\d+)/deployment_protection_rule`)

// Handle approves the protection rule via the callback the platform
// provided, retried with backoff.
func (h *DeploymentProtectionRule) Handle(ctx context.Context, event *webhook.Event) error {
	payload, ok := event.Payload.(*gh.DeploymentProtectionRuleEvent)
	if !ok || payload.GetAction() != "requested" {
		return nil
	}
	if !h.enabled {
		h.logger.DebugContext(ctx, "deployment protection rule approval is not enabled",
			"delivery", event.Headers.Delivery)
		return nil
	}

	repository := github.NewRepositoryID(payload.GetRepo())
	environment := payload.GetEnvironment()

	match := runIDFromCallback.FindStringSubmatch(payload.GetDeploymentCallbackURL())
	if match == nil {
		return fmt.Errorf("cannot determine workflow run from callback url %q", payload.GetDeploymentCallbackURL())
	}
	runID, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid workflow run id %q: %w", match[1], err)
	}

	h.logger.InfoContext(ctx, "approving deployment protection rule",
		"repository", repository.String(),
		"environment", environment,
		"workflow_run", runID)

	return github.WithRetry(ctx, h.logger, "approve-deployment-protection-rule", func(ctx context.Context) error {
		_, err := h.client.REST.Actions.ReviewCustomDeploymentProtectionRule(ctx, repository.Owner, repository.Name, runID, &gh.ReviewCustomDeploymentProtectionRuleRequest{
			EnvironmentName: environment,
			State:           "approved",
			Comment:         "Automatically approved",
		})
		return err
	})
}
