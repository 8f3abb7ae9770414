package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridianvc/scout/internal/gateway"
)

const maxFetchBytes = 1 << 20

// FetchSpec builds the web_fetch tool, which retrieves a caller-supplied
// URL. The gateway checks the host against the domain allow-list before the
// handler runs.
func FetchSpec(client Doer) gateway.ToolSpec {
	if client == nil {
		client = defaultHTTPClient()
	}
	return gateway.ToolSpec{
		Name:        "web_fetch",
		Description: "Fetch the text content of a web page by URL.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"url"},
			"properties": map[string]any{
				"url": map[string]any{"type": "string"},
			},
		},
		Cacheable:   true,
		CacheTTL:    30 * time.Minute,
		RateClass:   "fetch",
		URLArgument: "url",
		Handler:     fetchHandler(client),
	}
}

func fetchHandler(client Doer) gateway.Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		rawURL, _ := args["url"].(string)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidArgument, err)
		}
		req.Header.Set("Accept", "text/html,application/json,text/plain")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrTransient, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", gateway.ErrTransient, err)
		}
		if err := classifyStatus(resp.StatusCode); err != nil {
			return nil, err
		}

		return map[string]any{
			"url":          rawURL,
			"status":       resp.StatusCode,
			"content_type": resp.Header.Get("Content-Type"),
			"content":      strings.ToValidUTF8(string(body), ""),
			"truncated":    int64(len(body)) == maxFetchBytes,
		}, nil
	}
}
