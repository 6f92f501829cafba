package runtime

import (
	"context"
	"errors"
	"net/http"
)

type ThreadState struct {
	Values map[string]any `json:"values"`
	Next   []string       `json:"next"`
}

type Assistant struct {
	AssistantID string `json:"assistant_id"`
	GraphID     string `json:"graph_id"`
	Name        string `json:"name"`
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ThreadID string `json:"thread_id"`
	}
	if err := c.doJSON(ctx, "create thread", http.MethodPost, "/threads", map[string]any{}, &out); err != nil {
		return "", err
	}
	if out.ThreadID == "" {
		return "", &TransportError{Op: "create thread", Err: errors.New("response has no thread_id")}
	}
	return out.ThreadID, nil
}

func (c *Client) GetState(ctx context.Context, threadID string) (*ThreadState, error) {
	var out ThreadState
	if err := c.doJSON(ctx, "get thread state", http.MethodGet, threadPath(threadID, "/state"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateState(ctx context.Context, threadID string, patch StatePatch) error {
	return c.doJSON(ctx, "update thread state", http.MethodPost, threadPath(threadID, "/state"), patch, nil)
}

func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.doJSON(ctx, "health check", http.MethodGet, "/ok", nil, nil) == nil
}

func (c *Client) ListAssistants(ctx context.Context) ([]Assistant, error) {
	var out []Assistant
	if err := c.doJSON(ctx, "list assistants", http.MethodPost, "/assistants/search", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
