package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"prizmagent/internal/domain"
)

const (
	fetchMaxBytes  = 500 * 1024
	fetchMaxOutput = 10000
)

// WebFetchTool fetches a web page and returns its content as markdown.
type WebFetchTool struct {
	client    *http.Client
	converter *md.Converter
}

var _ domain.Tool = (*WebFetchTool)(nil)

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		client:    &http.Client{Timeout: searchTimeout},
		converter: md.NewConverter("", true, nil),
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetch the content of a web page by URL, converted to markdown. Useful for reading articles or documentation."
}
func (t *WebFetchTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"url": {Type: "string", Description: "Full URL to fetch (must start with http:// or https://)"},
		},
		[]string{"url"},
	)
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	rawURL := ArgsString(args, "url")
	if rawURL == "" {
		return "", domain.Failf(domain.InvalidArguments, "web_fetch: missing argument: url")
	}

	// Only http/https, to keep the tool from reaching internal schemes.
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", domain.Failf(domain.InvalidArguments, "web_fetch: invalid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", domain.Failf(domain.InvalidArguments, "web_fetch: unsupported URL scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgentString)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		if converted, err := t.converter.ConvertString(text); err == nil {
			text = converted
		}
	}

	text = strings.TrimSpace(text)
	if len(text) > fetchMaxOutput {
		text = text[:fetchMaxOutput] + "\n... (truncated)"
	}
	return text, nil
}
