// Package annotations posts deployment markers to an external annotation
// API so deployments can be overlaid on dashboards.
package annotations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Annotation is one deployment marker.
type Annotation struct {
	Time    int64    `json:"time"`
	TimeEnd int64    `json:"timeEnd,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Text    string   `json:"text"`
}

// Client talks to the annotation API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds an annotation client.
func NewClient(baseURL, token string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// Create posts a new annotation and returns its id.
func (c *Client) Create(ctx context.Context, annotation Annotation) (int64, error) {
	body, err := json.Marshal(annotation)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize annotation: %w", err)
	}

	var result struct {
		ID int64 `json:"id"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/annotations", body, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

// End patches an existing annotation with its end time.
func (c *Client) End(ctx context.Context, id int64, endedAt time.Time) error {
	body, err := json.Marshal(map[string]int64{"timeEnd": endedAt.UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to serialize annotation update: %w", err)
	}
	return c.send(ctx, http.MethodPatch, fmt.Sprintf("/api/annotations/%d", id), body, nil)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("annotation API returned %s for %s %s", resp.Status, method, path)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
