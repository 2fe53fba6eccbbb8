package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	gh "github.com/google/go-github/v81/github"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

// PushOptions configure the dependency-manifest push trigger.
type PushOptions struct {
	// Branches are the protected branch names that trigger a dispatch.
	Branches []string

	// Languages restricts the trigger to repositories of these languages.
	// Empty means any language.
	Languages []string

	// FileExtensions are manifest file extensions, e.g. ".csproj".
	FileExtensions []string

	// FileNames are root-relative manifest file names, e.g. "package.json".
	FileNames []string

	// DispatchRepository is the "owner/name" repository to dispatch to.
	DispatchRepository string
}

// Push triggers a cross-repository dispatch when dependency manifests
// change on a protected branch.
type Push struct {
	client     *github.Client
	branches   map[string]struct{}
	languages  map[string]struct{}
	extensions map[string]struct{}
	filenames  map[string]struct{}
	target     github.RepositoryID
	logger     *slog.Logger
}

// NewPush builds the push handler.
func NewPush(client *github.Client, opts PushOptions, logger *slog.Logger) (*Push, error) {
	owner, name, ok := strings.Cut(opts.DispatchRepository, "/")
	if opts.DispatchRepository != "" && (!ok || owner == "" || name == "") {
		return nil, fmt.Errorf("invalid dispatch repository %q", opts.DispatchRepository)
	}
	return &Push{
		client:     client,
		branches:   lowerSet(opts.Branches),
		languages:  lowerSet(opts.Languages),
		extensions: lowerSet(opts.FileExtensions),
		filenames:  lowerSet(opts.FileNames),
		target:     github.RepositoryID{Owner: owner, Name: name},
		logger:     logger,
	}, nil
}

// Handle dispatches when an eligible push modifies a dependency manifest.
func (h *Push) Handle(ctx context.Context, event *webhook.Event) error {
	payload, ok := event.Payload.(*gh.PushEvent)
	if !ok || h.target.Owner == "" {
		return nil
	}

	repo := payload.GetRepo()
	branch := strings.TrimPrefix(payload.GetRef(), "refs/heads/")
	log := h.logger.With("repository", repo.GetFullName(), "branch", branch)

	if _, ok := h.branches[strings.ToLower(branch)]; !ok {
		return nil
	}
	if payload.GetCreated() || payload.GetDeleted() {
		log.DebugContext(ctx, "ignoring branch create or delete push")
		return nil
	}
	if repo.GetFork() {
		log.DebugContext(ctx, "ignoring push to fork")
		return nil
	}
	if len(h.languages) > 0 {
		if _, ok := h.languages[strings.ToLower(repo.GetLanguage())]; !ok {
			log.DebugContext(ctx, "repository language is not eligible", "language", repo.GetLanguage())
			return nil
		}
	}
	if !h.manifestChanged(payload.Commits) {
		log.DebugContext(ctx, "push did not change a dependency manifest")
		return nil
	}

	dispatch, err := json.Marshal(map[string]any{
		"repository": repo.GetFullName(),
		"ref":        payload.GetRef(),
		"sha":        payload.GetHeadCommit().GetID(),
	})
	if err != nil {
		return fmt.Errorf("serialize dispatch payload: %w", err)
	}

	log.InfoContext(ctx, "dispatching dependency manifest update", "target", h.target.String())

	raw := json.RawMessage(dispatch)
	return github.WithRetry(ctx, h.logger, "dispatch-manifest-update", func(ctx context.Context) error {
		_, _, err := h.client.REST.Repositories.Dispatch(ctx, h.target.Owner, h.target.Name, gh.DispatchRequestOptions{
			EventType:     "dependencies_updated",
			ClientPayload: &raw,
		})
		return err
	})
}

func (h *Push) manifestChanged(commits []*gh.HeadCommit) bool {
	for _, commit := range commits {
		for _, file := range commit.Added {
			if h.isManifest(file) {
				return true
			}
		}
		for _, file := range commit.Modified {
			if h.isManifest(file) {
				return true
			}
		}
	}
	return false
}

func (h *Push) isManifest(file string) bool {
	lowered := strings.ToLower(file)
	if _, ok := h.filenames[lowered]; ok {
		return true
	}
	_, ok := h.extensions[path.Ext(lowered)]
	return ok
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			set[value] = struct{}{}
		}
	}
	return set
}
