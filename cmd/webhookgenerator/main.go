// Command webhookgenerator posts signed synthetic webhook deliveries to a
// running gateway at a fixed interval, for local development and load
// testing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid interval duration:", err)
		os.Exit(1)
	}
	if interval <= 0 {
		fmt.Fprintln(os.Stderr, "interval must be positive")
		os.Exit(1)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 10 * time.Second}
	for {
		if err := sendDelivery(client, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "delivery error:", err)
		}
		<-ticker.C
	}
}

func loadConfig(path string) (config, error) {
	if strings.TrimSpace(path) == "" {
		return config{}, fmt.Errorf("config path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Path = strings.TrimSpace(cfg.Path)
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	cfg.Event = strings.TrimSpace(cfg.Event)
	cfg.Repository = strings.TrimSpace(cfg.Repository)
	cfg.InstallationTargetID = strings.TrimSpace(cfg.InstallationTargetID)
	cfg.Interval = strings.TrimSpace(cfg.Interval)

	if cfg.BaseURL == "" {
		return config{}, fmt.Errorf("config must include base_url")
	}
	if cfg.Path == "" {
		cfg.Path = "/github-webhook"
	}
	if cfg.Event == "" {
		cfg.Event = "ping"
	}
	if cfg.Repository == "" {
		cfg.Repository = "octocat/sandbox"
	}
	if cfg.Interval == "" {
		return config{}, fmt.Errorf("interval must be provided")
	}

	return cfg, nil
}

func sendDelivery(client *http.Client, cfg config) error {
	delivery := uuid.NewString()

	body, err := buildPayload(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	request, err := http.NewRequestWithContext(context.Background(), http.MethodPost, strings.TrimRight(cfg.BaseURL, "/")+cfg.Path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(webhook.DeliveryHeader, delivery)
	request.Header.Set(webhook.EventHeader, cfg.Event)
	request.Header.Set(webhook.HookIDHeader, "1")
	request.Header.Set(webhook.InstallationTargetTypeHeader, "repository")
	if cfg.InstallationTargetID != "" {
		request.Header.Set(webhook.InstallationTargetIDHeader, cfg.InstallationTargetID)
	}
	if cfg.Secret != "" {
		request.Header.Set(webhook.SignatureHeader, webhook.Sign(body, cfg.Secret))
	}

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delivery rejected: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	fmt.Printf("Delivered %s event %s: %s\n", cfg.Event, delivery, resp.Status)
	return nil
}

// buildPayload emits a minimal but well-formed payload for the configured
// event type; unknown types fall back to a ping-shaped body.
func buildPayload(cfg config) ([]byte, error) {
	owner, name, _ := strings.Cut(cfg.Repository, "/")
	repository := map[string]any{
		"name":      name,
		"full_name": cfg.Repository,
		"owner":     map[string]any{"login": owner},
	}

	switch cfg.Event {
	case "push":
		return json.Marshal(map[string]any{
			"ref":         "refs/heads/main",
			"repository":  repository,
			"head_commit": map[string]any{"id": uuid.NewString()},
			"commits":     []any{},
		})
	case "pull_request":
		return json.Marshal(map[string]any{
			"action": "opened",
			"pull_request": map[string]any{
				"number": 1,
				"user":   map[string]any{"login": "octocat"},
				"head":   map[string]any{"ref": "patch-1", "sha": uuid.NewString()},
			},
			"repository": repository,
		})
	default:
		return json.Marshal(map[string]any{
			"zen":        "Keep it logically awesome.",
			"repository": repository,
		})
	}
}
