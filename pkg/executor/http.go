package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDriver forwards each tool call as a JSON POST to a webhook that owns the
// real ads or helpdesk credentials. A 2xx response confirms the call; its JSON
// body, if any, is kept on the receipt.
type HTTPDriver struct {
	url    string
	client *http.Client
}

// NewHTTPDriver posts tool calls to url.
func NewHTTPDriver(url string, timeout time.Duration) *HTTPDriver {
	return &HTTPDriver{url: url, client: &http.Client{Timeout: timeout}}
}

type toolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

func (d *HTTPDriver) Call(ctx context.Context, tool string, args map[string]any) (any, error) {
	body, err := json.Marshal(toolCall{Tool: tool, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tool, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", tool, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", tool, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("call %s: status %d: %s", tool, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw), nil
	}
	return out, nil
}
