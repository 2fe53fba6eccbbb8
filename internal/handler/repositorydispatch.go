package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gh "github.com/google/go-github/v81/github"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/martincostello/costellobot-sub000/internal/annotations"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

const annotationCacheTTL = time.Hour

// RepositoryDispatch records deployment start and completion markers in
// the external annotation API. The annotation id created by the started
// event is cached briefly so the completed event can close it.
type RepositoryDispatch struct {
	annotations *annotations.Client
	cache       *expirable.LRU[string, int64]
	logger      *slog.Logger
}

// NewRepositoryDispatch builds the repository_dispatch handler.
func NewRepositoryDispatch(client *annotations.Client, logger *slog.Logger) *RepositoryDispatch {
	return &RepositoryDispatch{
		annotations: client,
		cache:       expirable.NewLRU[string, int64](128, nil, annotationCacheTTL),
		logger:      logger,
	}
}

type deploymentDispatch struct {
	Application string `json:"application"`
	Environment string `json:"environment"`
	Repository  string `json:"repository"`
	RunNumber   int64  `json:"run_number"`
	RunAttempt  int64  `json:"run_attempt"`
	SHA         string `json:"sha"`
}

func (d deploymentDispatch) key() string {
	return fmt.Sprintf("%s/%d/%d", d.Repository, d.RunNumber, d.RunAttempt)
}

// Handle records the deployment marker the dispatch describes.
func (h *RepositoryDispatch) Handle(ctx context.Context, event *webhook.Event) error {
	payload, ok := event.Payload.(*gh.RepositoryDispatchEvent)
	if !ok || h.annotations == nil {
		return nil
	}

	action := payload.GetAction()
	if action != "deployment_started" && action != "deployment_completed" {
		return nil
	}

	var dispatch deploymentDispatch
	if err := json.Unmarshal(payload.ClientPayload, &dispatch); err != nil {
		return fmt.Errorf("invalid %s payload: %w", action, err)
	}
	if dispatch.Repository == "" || dispatch.RunNumber == 0 {
		h.logger.WarnContext(ctx, "dispatch payload is missing its deployment key",
			"action", action,
			"repository", dispatch.Repository)
		return nil
	}

	switch action {
	case "deployment_started":
		return h.started(ctx, dispatch)
	default:
		return h.completed(ctx, dispatch)
	}
}

func (h *RepositoryDispatch) started(ctx context.Context, dispatch deploymentDispatch) error {
	id, err := h.annotations.Create(ctx, annotations.Annotation{
		Time: time.Now().UnixMilli(),
		Tags: []string{"deployment", dispatch.Application, dispatch.Environment},
		Text: fmt.Sprintf("Deployment of %s to %s (%s)", dispatch.Repository, dispatch.Environment, dispatch.SHA),
	})
	if err != nil {
		return fmt.Errorf("create annotation for %s: %w", dispatch.key(), err)
	}

	h.cache.Add(dispatch.key(), id)
	h.logger.InfoContext(ctx, "recorded deployment start",
		"repository", dispatch.Repository,
		"annotation", id)
	return nil
}

func (h *RepositoryDispatch) completed(ctx context.Context, dispatch deploymentDispatch) error {
	id, ok := h.cache.Get(dispatch.key())
	if !ok {
		h.logger.WarnContext(ctx, "no start annotation found for completed deployment",
			"repository", dispatch.Repository,
			"run_number", dispatch.RunNumber,
			"run_attempt", dispatch.RunAttempt)
		return nil
	}

	if err := h.annotations.End(ctx, id, time.Now()); err != nil {
		return fmt.Errorf("end annotation %d for %s: %w", id, dispatch.key(), err)
	}

	h.cache.Remove(dispatch.key())
	h.logger.InfoContext(ctx, "recorded deployment completion",
		"repository", dispatch.Repository,
		"annotation", id)
	return nil
}
