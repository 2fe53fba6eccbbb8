package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	gh "github.com/google/go-github/v81/github"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

// IssueCommentOptions configure the comment command handler.
type IssueCommentOptions struct {
	// CommandPrefix marks a comment as a command for this system.
	CommandPrefix string
}

// IssueComment executes commands the repository owner leaves in comments.
// The only command currently supported is "rebase".
type IssueComment struct {
	client *github.Client
	prefix string
	logger *slog.Logger
}

// NewIssueComment builds the issue_comment handler.
func NewIssueComment(client *github.Client, opts IssueCommentOptions, logger *slog.Logger) *IssueComment {
	prefix := opts.CommandPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = "@costellobot "
	}
	return &IssueComment{client: client, prefix: prefix, logger: logger}
}

// Handle runs the command a new comment carries, if any.
func (h *IssueComment) Handle(ctx context.Context, event *webhook.Event) error {
	payload, ok := event.Payload.(*gh.IssueCommentEvent)
	if !ok || event.Action != "created" {
		return nil
	}

	comment := payload.GetComment()
	if comment.GetAuthorAssociation() != "OWNER" {
		return nil
	}

	body := strings.TrimSpace(comment.GetBody())
	if !strings.HasPrefix(body, h.prefix) {
		return nil
	}

	repository := github.NewRepositoryID(payload.GetRepo())
	issue := github.IssueID{Repository: repository, Number: payload.GetIssue().GetNumber()}
	fields := strings.Fields(strings.TrimPrefix(body, h.prefix))
	if len(fields) == 0 {
		return nil
	}
	command := strings.ToLower(fields[0])

	switch command {
	case "rebase":
		if err := h.rebase(ctx, repository, issue, payload); err != nil {
			return err
		}
	default:
		h.logger.DebugContext(ctx, "ignoring unknown command",
			"issue", issue.String(),
			"command", command)
		return nil
	}

	h.react(ctx, repository, comment.GetID())
	return nil
}

// rebase triggers a repository dispatch carrying the pull request's base
// and head refs so a workflow can rebase it.
func (h *IssueComment) rebase(ctx context.Context, repository github.RepositoryID, issue github.IssueID, payload *gh.IssueCommentEvent) error {
	if !payload.GetIssue().IsPullRequest() {
		h.logger.DebugContext(ctx, "rebase requested on an issue that is not a pull request", "issue", issue.String())
		return nil
	}

	pull, _, err := h.client.REST.PullRequests.Get(ctx, repository.Owner, repository.Name, issue.Number)
	if err != nil {
		return fmt.Errorf("get pull request %s: %w", issue.String(), err)
	}

	dispatch, err := json.Marshal(map[string]any{
		"base":   pull.GetBase().GetRef(),
		"head":   pull.GetHead().GetRef(),
		"number": issue.Number,
	})
	if err != nil {
		return fmt.Errorf("serialize dispatch payload: %w", err)
	}

	h.logger.InfoContext(ctx, "requesting rebase", "pull_request", issue.String())

	raw := json.RawMessage(dispatch)
	return github.WithRetry(ctx, h.logger, "dispatch-rebase", func(ctx context.Context) error {
		_, _, err := h.client.REST.Repositories.Dispatch(ctx, repository.Owner, repository.Name, gh.DispatchRequestOptions{
			EventType:     "rebase_pull_request",
			ClientPayload: &raw,
		})
		return err
	})
}

// react acknowledges the command with a reaction, best effort.
func (h *IssueComment) react(ctx context.Context, repository github.RepositoryID, commentID int64) {
	_, _, err := h.client.REST.Reactions.CreateIssueCommentReaction(ctx, repository.Owner, repository.Name, commentID, "+1")
	if err != nil {
		h.logger.WarnContext(ctx, "failed to react to comment",
			"repository", repository.String(),
			"comment", commentID,
			"error", err)
	}
}
