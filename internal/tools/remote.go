package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RemoteExecutor talks to a tool server over HTTP/JSON. The server exposes
// GET /tools and POST /tools/call with the same request/response shapes the
// local executor uses.
type RemoteExecutor struct {
	BaseURL string
	Client  *http.Client
}

func NewRemoteExecutor(baseURL string) *RemoteExecutor {
	return &RemoteExecutor{
		BaseURL: baseURL,
		Client:  http.DefaultClient,
	}
}

func (e *RemoteExecutor) ListTools(ctx context.Context) ([]Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/tools", nil)
	if err != nil {
		return nil, err
	}
	body, err := e.doJSON(req, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	var out struct {
		Tools []Info `json:"tools"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode tool list: %w", err)
	}
	return out.Tools, nil
}

func (e *RemoteExecutor) CallTool(ctx context.Context, name string, arguments string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/tools/call", nil)
	if err != nil {
		return "", err
	}
	payload := map[string]any{
		"name":      name,
		"arguments": json.RawMessage(arguments),
	}
	body, err := e.doJSON(req, payload)
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}

	var out struct {
		Observation string `json:"observation"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode tool result: %w", err)
	}
	return out.Observation, nil
}

// doJSON sends a JSON request payload and returns the response body.
func (e *RemoteExecutor) doJSON(req *http.Request, payload any) ([]byte, error) {
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.ContentLength = int64(len(b))
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
