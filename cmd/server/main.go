package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/martincostello/costellobot-sub000/internal/annotations"
	"github.com/martincostello/costellobot-sub000/internal/bus"
	"github.com/martincostello/costellobot-sub000/internal/config"
	"github.com/martincostello/costellobot-sub000/internal/dispatch"
	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/handler"
	"github.com/martincostello/costellobot-sub000/internal/observability"
	"github.com/martincostello/costellobot-sub000/internal/queue"
	"github.com/martincostello/costellobot-sub000/internal/registry"
	"github.com/martincostello/costellobot-sub000/internal/server"
	"github.com/martincostello/costellobot-sub000/internal/trust"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

var version = "dev"

const drainGracePeriod = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logs := queue.New[observability.LogEntry](queue.LogCapacity)
	log := newLogger(cfg, logs)
	slog.SetDefault(log)

	if err := run(cfg, log, logs); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config, logs *queue.Queue[observability.LogEntry]) *slog.Logger {
	var inner slog.Handler
	if cfg.IsLocalDevelopment() {
		inner = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(observability.WrapSlogHandler(observability.NewQueueHandler(inner, logs)))
}

func run(cfg config.Config, log *slog.Logger, logs *queue.Queue[observability.LogEntry]) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := observability.SetupOpenTelemetry(ctx, log, observability.OpenTelemetryConfig{
		Enabled:       cfg.Telemetry.Enabled,
		OTLPEndpoint:  cfg.Telemetry.OTLPEndpoint,
		OTLPHeaders:   cfg.Telemetry.OTLPHeaders,
		ServiceName:   "costellobot",
		ServiceVer:    version,
		SamplingRatio: cfg.Telemetry.SamplingRatio,
	})
	if err != nil {
		return fmt.Errorf("configure telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	store, err := trust.OpenStore(cfg.Trust.StorePath)
	if err != nil {
		return fmt.Errorf("open trust store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close trust store", "error", err)
		}
	}()

	client, err := github.NewClient(github.ClientOptions{
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("create GitHub client: %w", err)
	}

	reviewer := client
	if cfg.GitHub.ReviewerToken != "" {
		reviewer, err = github.NewClient(github.ClientOptions{
			Token:   cfg.GitHub.ReviewerToken,
			BaseURL: cfg.GitHub.BaseURL,
		})
		if err != nil {
			return fmt.Errorf("create reviewer GitHub client: %w", err)
		}
	}

	engine, err := newEngine(cfg, store, client, log)
	if err != nil {
		return fmt.Errorf("create trust engine: %w", err)
	}

	handlers, err := newHandlers(cfg, client, reviewer, engine, log)
	if err != nil {
		return fmt.Errorf("create handlers: %w", err)
	}

	dispatcher := dispatch.New(cfg.GitHub.InstallationTargetID, handlers, log)

	events := queue.New[*webhook.Event](queue.WebhookCapacity)

	var publisher webhook.Publisher
	if cfg.Broker.Enabled {
		bridge, err := bus.NewBridge(cfg.Broker.Endpoint, log)
		if err != nil {
			return fmt.Errorf("create broker publisher: %w", err)
		}
		publisher = bridge
	}

	gateway := webhook.NewGateway(cfg.Webhook.Path, cfg.Webhook.Secret, events, publisher, log)

	srv := server.New(log, version)
	srv.RegisterRouter(gateway)

	errs := make(chan error, 3)

	if cfg.Broker.Enabled {
		// The broker is the processing path; the local queue only keeps
		// delivery history for replay.
		consumer := bus.NewConsumer(cfg.Broker.ConsumerPort, dispatcher, log)
		go func() {
			errs <- consumer.Run(ctx)
		}()
		go drainHistory(ctx, events)
	} else {
		go func() {
			dispatcher.Consume(ctx, events.DequeueAsync)
			errs <- nil
		}()
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("Starting server", "port", cfg.Server.Port, "version", version)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("Shutting down", "signal", sig.String())
	case err := <-errs:
		if err != nil {
			return err
		}
		log.Info("Event processing stopped; shutting down")
	}

	// Stop accepting new deliveries, then let in-flight events drain before
	// cancelling the workers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}

	events.SignalCompletion()
	logs.SignalCompletion()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainGracePeriod)
	defer drainCancel()
	if err := events.WaitForQueueToDrainAsync(drainCtx); err != nil {
		log.Warn("Event queue did not drain before the grace period expired", "error", err)
	}

	cancel()
	return nil
}

func newEngine(cfg config.Config, store *trust.Store, client *github.Client, log *slog.Logger) (*trust.Engine, error) {
	registries := []trust.PackageRegistry{
		registry.NewGitHubActions(client),
		registry.NewGitSubmodule(client),
		registry.NewNpm("", nil),
		registry.NewNuGet("", nil),
		registry.NewRubyGems("", nil),
	}

	publishers := map[trust.Ecosystem][]string{
		trust.EcosystemGitHubActions: cfg.Trust.TrustedPublishers["github-actions"],
		trust.EcosystemNpm:           cfg.Trust.TrustedPublishers["npm"],
		trust.EcosystemNuGet:         cfg.Trust.TrustedPublishers["nuget"],
		trust.EcosystemRuby:          cfg.Trust.TrustedPublishers["ruby"],
		trust.EcosystemGitSubmodule:  cfg.Trust.TrustedPublishers["git-submodule"],
	}

	return trust.NewEngine(store, registries, trust.Options{
		TrustedDependencyPatterns: cfg.Trust.TrustedDependencies,
		TrustedPublishers:         publishers,
	}, log)
}

func newHandlers(cfg config.Config, client, reviewer *github.Client, engine *trust.Engine, log *slog.Logger) (map[string]dispatch.Handler, error) {
	checkSuite, err := handler.NewCheckSuite(client, handler.CheckSuiteOptions{
		RerunFailedChecks:         cfg.CheckSuite.RerunFailedChecks,
		RerunFailedChecksAttempts: cfg.CheckSuite.RerunFailedChecksAttempts,
		TrustedUsers:              cfg.PullRequest.TrustedUsers,
	}, log)
	if err != nil {
		return nil, err
	}

	push, err := handler.NewPush(client, handler.PushOptions{
		Branches:           cfg.Push.Branches,
		Languages:          cfg.Push.Languages,
		FileExtensions:     cfg.Push.FileExtensions,
		FileNames:          cfg.Push.FileNames,
		DispatchRepository: cfg.Push.DispatchRepository,
	}, log)
	if err != nil {
		return nil, err
	}

	rules := []handler.DeploymentRule{
		&handler.NotOnHolidayRule{
			Provider: handler.NewPublicHolidayProvider(cfg.Deploy.HolidaysURL, nil),
			Logger:   log,
		},
		handler.NewDeployDaysRule(cfg.Deploy.DeployDays),
	}

	deploymentStatus := handler.NewDeploymentStatus(client, reviewer, engine, rules, handler.DeploymentStatusOptions{
		Environments:   cfg.Deploy.Environments,
		TrustedAuthors: cfg.Deploy.TrustedAuthors,
	}, log)

	pullRequest := handler.NewPullRequest(client, engine, handler.PullRequestOptions{
		Approve:            cfg.PullRequest.Approve,
		ApproveComment:     cfg.PullRequest.ApproveComment,
		Automerge:          cfg.PullRequest.Automerge,
		AutomergeLabel:     cfg.PullRequest.AutomergeLabel,
		RequiredLabels:     cfg.PullRequest.RequiredLabels,
		TrustedUsers:       cfg.PullRequest.TrustedUsers,
		IgnoreRepositories: cfg.PullRequest.IgnoreRepositories,
	}, log)

	var annotationsClient *annotations.Client
	if cfg.Annotations.BaseURL != "" {
		annotationsClient = annotations.NewClient(cfg.Annotations.BaseURL, cfg.Annotations.Token, nil)
	}

	return map[string]dispatch.Handler{
		"check_suite":                checkSuite,
		"deployment_protection_rule": handler.NewDeploymentProtectionRule(client, cfg.Deploy.Enabled, log),
		"deployment_status":          deploymentStatus,
		"issue_comment":              handler.NewIssueComment(client, handler.IssueCommentOptions{CommandPrefix: cfg.Comments.CommandPrefix}, log),
		"pull_request":               pullRequest,
		"push":                       push,
		"repository_dispatch":        handler.NewRepositoryDispatch(annotationsClient, log),
	}, nil
}

// drainHistory keeps the local history queue from filling when the broker
// path owns processing.
func drainHistory(ctx context.Context, events *queue.Queue[*webhook.Event]) {
	for {
		if _, ok := events.DequeueAsync(ctx); !ok {
			return
		}
	}
}
