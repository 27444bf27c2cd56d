package websearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/pkg/schema"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/tools"
	"golang.org/x/net/html"
)

const FetchToolName = "fetch_page"

const (
	// DefaultMaxChars caps extracted page text when the caller does not
	// pass a limit.
	DefaultMaxChars = 3000
	// maxFetchBody bounds how much of the response body is read.
	maxFetchBody = 1 << 20

	userAgent = "Mozilla/5.0 (compatible; toolgate/1.0)"
)

// FetchRequest represents the fetch_page tool input.
type FetchRequest struct {
	URL      string `json:"url" yaml:"url" jsonschema:"title=Page URL,description=URL of the webpage to fetch."`
	MaxChars int    `json:"max_chars,omitempty" yaml:"max_chars,omitempty" jsonschema:"title=Max Chars,description=Maximum characters to return (default: 3000)."`
}

// FetchResult holds the extracted plain text of a page.
type FetchResult struct {
	URL     string `json:"url" yaml:"url"`
	Content string `json:"content" yaml:"content"`
}

// FetchTool fetches a webpage and extracts its plain text.
type FetchTool struct {
	name        string
	description string
	funcParams  any

	httpClient *http.Client
}

var _ tools.Tool[FetchRequest, FetchResult] = (*FetchTool)(nil)

func NewFetchPage() (*FetchTool, error) {
	sc, err := schema.New(reflect.TypeOf(FetchRequest{}))
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create schema")
	}
	return &FetchTool{
		name:        FetchToolName,
		description: "Fetch and extract plain text content from a webpage.",
		httpClient:  http.DefaultClient,
		funcParams:  sc.Parameters,
	}, nil
}

func (t *FetchTool) WithHTTPClient(client *http.Client) *FetchTool {
	t.httpClient = client
	return t
}

func (t *FetchTool) Name() string {
	return t.name
}

func (t *FetchTool) Description() string {
	return t.description
}

func (t *FetchTool) Parameters() any {
	return t.funcParams
}

func (t *FetchTool) SideEffect() tools.SideEffect {
	return tools.SideEffectReadOnly
}

func (t *FetchTool) Idempotent() bool {
	return true
}

func (t *FetchTool) Run(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.URL == "" {
		return nil, toolcall.NewError("invalid request: empty url")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, toolcall.NewError("invalid url: %s", req.URL)
	}

	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	httpClient := t.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, toolcall.NewError("invalid url: %s", req.URL)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, toolcall.NewRetryableError("page fetch failed: %s", err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, toolcall.NewRetryableError("page fetch upstream error: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, toolcall.NewError("page fetch failed: status %d", resp.StatusCode)
	}

	text := extractText(io.LimitReader(resp.Body, maxFetchBody))
	if len(text) > maxChars {
		text = text[:maxChars] + "..."
	}

	return &FetchResult{
		URL:     req.URL,
		Content: text,
	}, nil
}

func (t *FetchTool) Call(ctx context.Context, args map[string]any) ([]byte, error) {
	js, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal arguments")
	}
	var req FetchRequest
	if err := json.Unmarshal(js, &req); err != nil {
		return nil, toolcall.NewError("failed to unmarshal arguments: %s", err.Error())
	}
	out, err := t.Run(ctx, &req)
	if err != nil {
		return nil, err
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal output")
	}
	return bs, nil
}

// extractText walks the HTML token stream, drops script and style
// subtrees, and collapses all whitespace runs to single spaces.
func extractText(r io.Reader) string {
	z := html.NewTokenizer(r)
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if n := string(name); n == "script" || n == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if n := string(name); (n == "script" || n == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}
