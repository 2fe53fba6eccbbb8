package annotations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateAnnotation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/annotations" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}

		var annotation Annotation
		if err := json.NewDecoder(r.Body).Decode(&annotation); err != nil {
			t.Errorf("decode annotation: %v", err)
		}
		if annotation.Text != "Deployment of octocat/widgets" {
			t.Errorf("text = %q", annotation.Text)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"id": 77})
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "secret", server.Client())

	id, err := client.Create(context.Background(), Annotation{
		Time: time.Now().UnixMilli(),
		Tags: []string{"deployment"},
		Text: "Deployment of octocat/widgets",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 77 {
		t.Fatalf("id = %d, want 77", id)
	}
}

func TestEndAnnotation(t *testing.T) {
	t.Parallel()

	endedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/annotations/77" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var update map[string]int64
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			t.Errorf("decode update: %v", err)
		}
		if update["timeEnd"] != endedAt.UnixMilli() {
			t.Errorf("timeEnd = %d, want %d", update["timeEnd"], endedAt.UnixMilli())
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "", server.Client())
	if err := client.End(context.Background(), 77, endedAt); err != nil {
		t.Fatalf("end: %v", err)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "wrong", server.Client())
	if _, err := client.Create(context.Background(), Annotation{Text: "x"}); err == nil {
		t.Fatal("expected an error for a forbidden response")
	}
}
