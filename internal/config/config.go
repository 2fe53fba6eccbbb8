// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Environment string
	Server      ServerConfig
	Webhook     WebhookConfig
	GitHub      GitHubConfig
	Broker      BrokerConfig
	Trust       TrustConfig
	CheckSuite  CheckSuiteConfig
	Deploy      DeployConfig
	PullRequest PullRequestConfig
	Push        PushConfig
	Comments    CommentsConfig
	Annotations AnnotationsConfig
	Telemetry   TelemetryConfig
}

type ServerConfig struct {
	Port int
}

type WebhookConfig struct {
	Path   string
	Secret string
}

type GitHubConfig struct {
	Token                string
	ReviewerToken        string
	BaseURL              string
	InstallationTargetID string
}

type BrokerConfig struct {
	Enabled      bool
	Endpoint     string
	ConsumerPort int
}

type TrustConfig struct {
	StorePath           string
	TrustedDependencies []string
	TrustedPublishers   map[string][]string
	ImplicitTrust       bool
}

type CheckSuiteConfig struct {
	RerunFailedChecks         []string
	RerunFailedChecksAttempts int
}

type DeployConfig struct {
	Enabled        bool
	Environments   []string
	DeployDays     []string
	TrustedAuthors []string
	HolidaysURL    string
}

type PullRequestConfig struct {
	Approve            bool
	ApproveComment     string
	Automerge          bool
	AutomergeLabel     string
	RequiredLabels     []string
	TrustedUsers       []string
	IgnoreRepositories []string
}

type PushConfig struct {
	Branches           []string
	Languages          []string
	FileExtensions     []string
	FileNames          []string
	DispatchRepository string
}

type CommentsConfig struct {
	CommandPrefix string
}

type AnnotationsConfig struct {
	BaseURL string
	Token   string
}

type TelemetryConfig struct {
	Enabled       bool
	OTLPEndpoint  string
	OTLPHeaders   map[string]string
	SamplingRatio float64
}

// Load reads configuration from the environment with sensible defaults.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("costellobot_env", "")
	v.SetDefault("costellobot_port", 8080)
	v.SetDefault("costellobot_webhook_path", "/github-webhook")
	v.SetDefault("costellobot_webhook_secret", "")
	v.SetDefault("github_token", "")
	v.SetDefault("github_reviewer_token", "")
	v.SetDefault("github_base_url", "")
	v.SetDefault("github_installation_target_id", "")
	v.SetDefault("costellobot_broker_enabled", false)
	v.SetDefault("costellobot_broker_endpoint", "")
	v.SetDefault("costellobot_broker_consumer_port", 8082)
	v.SetDefault("costellobot_trust_store_path", "data/trust")
	v.SetDefault("costellobot_trusted_dependencies", "")
	v.SetDefault("costellobot_trusted_publishers_github_actions", "actions,github,dotnet")
	v.SetDefault("costellobot_trusted_publishers_npm", "")
	v.SetDefault("costellobot_trusted_publishers_nuget", "")
	v.SetDefault("costellobot_trusted_publishers_ruby", "")
	v.SetDefault("costellobot_trusted_publishers_submodules", "")
	v.SetDefault("costellobot_rerun_failed_checks", "")
	v.SetDefault("costellobot_rerun_failed_checks_attempts", 2)
	v.SetDefault("costellobot_deploy_enabled", false)
	v.SetDefault("costellobot_deploy_environments", "")
	v.SetDefault("costellobot_deploy_days", "monday,tuesday,wednesday,thursday,friday")
	v.SetDefault("costellobot_trusted_authors", "")
	v.SetDefault("costellobot_holidays_url", "")
	v.SetDefault("costellobot_pr_approve", true)
	v.SetDefault("costellobot_pr_approve_comment", "")
	v.SetDefault("costellobot_pr_automerge", true)
	v.SetDefault("costellobot_pr_automerge_label", "automerge")
	v.SetDefault("costellobot_pr_required_labels", "")
	v.SetDefault("costellobot_trusted_users", "dependabot[bot]")
	v.SetDefault("costellobot_ignore_repositories", "")
	v.SetDefault("costellobot_push_branches", "main")
	v.SetDefault("costellobot_push_languages", "")
	v.SetDefault("costellobot_push_file_extensions", ".csproj,.fsproj,.props,.targets")
	v.SetDefault("costellobot_push_file_names", "package.json,package-lock.json,global.json,dockerfile")
	v.SetDefault("costellobot_push_dispatch_repository", "")
	v.SetDefault("costellobot_command_prefix", "@costellobot ")
	v.SetDefault("costellobot_annotations_url", "")
	v.SetDefault("costellobot_annotations_token", "")
	v.SetDefault("costellobot_otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_exporter_otlp_headers", "")
	v.SetDefault("costellobot_otel_sampling_ratio", 1.0)

	port := v.GetInt("costellobot_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid COSTELLOBOT_PORT: %d", port)
	}

	cfg := Config{
		Environment: strings.ToLower(strings.TrimSpace(v.GetString("costellobot_env"))),
		Server:      ServerConfig{Port: port},
		Webhook: WebhookConfig{
			Path:   strings.TrimSpace(v.GetString("costellobot_webhook_path")),
			Secret: strings.TrimSpace(v.GetString("costellobot_webhook_secret")),
		},
		GitHub: GitHubConfig{
			Token:                strings.TrimSpace(v.GetString("github_token")),
			ReviewerToken:        strings.TrimSpace(v.GetString("github_reviewer_token")),
			BaseURL:              strings.TrimSpace(v.GetString("github_base_url")),
			InstallationTargetID: strings.TrimSpace(v.GetString("github_installation_target_id")),
		},
		Broker: BrokerConfig{
			Enabled:      v.GetBool("costellobot_broker_enabled"),
			Endpoint:     strings.TrimSpace(v.GetString("costellobot_broker_endpoint")),
			ConsumerPort: v.GetInt("costellobot_broker_consumer_port"),
		},
		Trust: TrustConfig{
			StorePath:           strings.TrimSpace(v.GetString("costellobot_trust_store_path")),
			TrustedDependencies: splitList(v.GetString("costellobot_trusted_dependencies")),
			TrustedPublishers: map[string][]string{
				"github-actions": splitList(v.GetString("costellobot_trusted_publishers_github_actions")),
				"npm":            splitList(v.GetString("costellobot_trusted_publishers_npm")),
				"nuget":          splitList(v.GetString("costellobot_trusted_publishers_nuget")),
				"ruby":           splitList(v.GetString("costellobot_trusted_publishers_ruby")),
				"git-submodule":  splitList(v.GetString("costellobot_trusted_publishers_submodules")),
			},
		},
		CheckSuite: CheckSuiteConfig{
			RerunFailedChecks:         splitList(v.GetString("costellobot_rerun_failed_checks")),
			RerunFailedChecksAttempts: v.GetInt("costellobot_rerun_failed_checks_attempts"),
		},
		Deploy: DeployConfig{
			Enabled:        v.GetBool("costellobot_deploy_enabled"),
			Environments:   splitList(v.GetString("costellobot_deploy_environments")),
			DeployDays:     splitList(v.GetString("costellobot_deploy_days")),
			TrustedAuthors: splitList(v.GetString("costellobot_trusted_authors")),
			HolidaysURL:    strings.TrimSpace(v.GetString("costellobot_holidays_url")),
		},
		PullRequest: PullRequestConfig{
			Approve:            v.GetBool("costellobot_pr_approve"),
			ApproveComment:     strings.TrimSpace(v.GetString("costellobot_pr_approve_comment")),
			Automerge:          v.GetBool("costellobot_pr_automerge"),
			AutomergeLabel:     strings.TrimSpace(v.GetString("costellobot_pr_automerge_label")),
			RequiredLabels:     splitList(v.GetString("costellobot_pr_required_labels")),
			TrustedUsers:       splitList(v.GetString("costellobot_trusted_users")),
			IgnoreRepositories: splitList(v.GetString("costellobot_ignore_repositories")),
		},
		Push: PushConfig{
			Branches:           splitList(v.GetString("costellobot_push_branches")),
			Languages:          splitList(v.GetString("costellobot_push_languages")),
			FileExtensions:     splitList(v.GetString("costellobot_push_file_extensions")),
			FileNames:          splitList(v.GetString("costellobot_push_file_names")),
			DispatchRepository: strings.TrimSpace(v.GetString("costellobot_push_dispatch_repository")),
		},
		Comments: CommentsConfig{
			CommandPrefix: v.GetString("costellobot_command_prefix"),
		},
		Annotations: AnnotationsConfig{
			BaseURL: strings.TrimSpace(v.GetString("costellobot_annotations_url")),
			Token:   strings.TrimSpace(v.GetString("costellobot_annotations_token")),
		},
		Telemetry: TelemetryConfig{
			Enabled:       v.GetBool("costellobot_otel_enabled") || strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint")) != "",
			OTLPEndpoint:  strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint")),
			OTLPHeaders:   parseOTLPHeaders(v.GetString("otel_exporter_otlp_headers")),
			SamplingRatio: v.GetFloat64("costellobot_otel_sampling_ratio"),
		},
	}

	if cfg.GitHub.Token == "" {
		return Config{}, fmt.Errorf("GITHUB_TOKEN is required")
	}
	if !cfg.IsLocalDevelopment() && cfg.Webhook.Secret == "" {
		return Config{}, fmt.Errorf("COSTELLOBOT_WEBHOOK_SECRET is required outside local/dev environments")
	}
	if cfg.Broker.Enabled && cfg.Broker.Endpoint == "" {
		return Config{}, fmt.Errorf("COSTELLOBOT_BROKER_ENDPOINT is required when the broker is enabled")
	}

	return cfg, nil
}

// IsLocalDevelopment reports whether the process runs in a local or
// development environment.
func (c Config) IsLocalDevelopment() bool {
	switch c.Environment {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func parseOTLPHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.SplitN(part, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key := strings.TrimSpace(pair[0])
		value := strings.TrimSpace(pair[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
