package cdp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// discoverTimeout bounds the metadata fetch; the inspector answers locally.
const discoverTimeout = 3 * time.Second

// DiscoverTarget fetches the inspector's /json target list and returns the
// first webSocketDebuggerUrl. Node exposes exactly one page-level target per
// inspected process.
func DiscoverTarget(ctx context.Context, host string, port int) (string, error) {
	url := fmt.Sprintf("http://%s:%d/json", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: discoverTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("inspector discovery on port %d: %w", port, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", &ProtocolError{Message: fmt.Sprintf("inspector discovery status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var wsURL string
	gjson.ParseBytes(body).ForEach(func(_, t gjson.Result) bool {
		if u := t.Get("webSocketDebuggerUrl").String(); u != "" {
			wsURL = u
			return false
		}
		return true
	})
	if wsURL == "" {
		return "", &ProtocolError{Message: "no debuggable target exposed a webSocketDebuggerUrl"}
	}
	return wsURL, nil
}
