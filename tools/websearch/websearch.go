// Package websearch provides a Tavily-backed web search tool.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/toolgate/pkg/schema"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/tools"
)

const ToolName = "web_search"

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query      string `json:"query" yaml:"query" jsonschema:"title=Search Query,description=The query to search web."`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty" jsonschema:"title=Max Results,description=Maximum number of results to return (default: 5)."`
}

// SearchResult represents the structure for a search response
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results" jsonschema:"title=results,description=The results from a web search."`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty" jsonschema:"title=answer,description=The aggregated answer from a web search."`
}

// Tool is a tool that provides a web search functionality
type Tool struct {
	name        string
	description string
	funcParams  any

	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ tools.Tool[SearchRequest, SearchResult] = (*Tool)(nil)

func New() (*Tool, error) {
	apikey := os.Getenv("TAVILY_API_KEY")
	if apikey == "" {
		return nil, errors.New("TAVILY_API_KEY is not set")
	}

	sc, err := schema.New(reflect.TypeOf(SearchRequest{}))
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create schema")
	}
	tool := &Tool{
		name:        ToolName,
		description: "A tool that provides a web search functionality.",
		apiKey:      apikey,
		httpClient:  http.DefaultClient,
		funcParams:  sc.Parameters,
	}
	return tool, nil
}

func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = baseURL
	return t
}

func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Parameters() any {
	return t.funcParams
}

func (t *Tool) SideEffect() tools.SideEffect {
	return tools.SideEffectReadOnly
}

func (t *Tool) Idempotent() bool {
	return true
}

func (t *Tool) Run(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, toolcall.NewError("invalid request: empty query")
	}

	httpClient := t.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	// shallow copy keeps the caller's Timeout and Jar, only the
	// Transport is wrapped with the status recorder
	recorder := &statusTransport{base: httpClient.Transport}
	wrapped := *httpClient
	wrapped.Transport = recorder

	client := tavilygo.NewClient(t.apiKey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	client.HTTPClient = &wrapped

	searchReq := tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	}
	if req.MaxResults > 0 {
		searchReq.MaxResults = req.MaxResults
	}

	searchResp, err := tavilygo.Search(client, searchReq)
	if err != nil {
		return nil, classify(err, recorder.last())
	}

	return &SearchResult{
		Results: searchResp.Results,
		Answer:  searchResp.Answer,
	}, nil
}

func (t *Tool) Call(ctx context.Context, args map[string]any) ([]byte, error) {
	js, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal arguments")
	}
	var req SearchRequest
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

// classify maps an upstream failure to the retry taxonomy: throttling,
// server errors and transport faults are transient; auth failures are
// not.
func classify(err error, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return toolcall.NewError("web search authentication failed")
	case status == http.StatusTooManyRequests || status >= 500:
		return toolcall.NewRetryableError("web search upstream error: status %d", status)
	case status == 0:
		return toolcall.NewRetryableError("web search request failed: %s", err.Error())
	default:
		return errors.WithMessage(err, "failed to perform search")
	}
}

// statusTransport records the last upstream HTTP status for error
// classification.
type statusTransport struct {
	base   http.RoundTripper
	status atomic.Int64
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if resp != nil {
		t.status.Store(int64(resp.StatusCode))
	}
	return resp, err
}

func (t *statusTransport) last() int {
	return int(t.status.Load())
}

func (r *SearchResult) String() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "ANSWER: %s\n", r.Answer)
	}

	for _, result := range r.Results {
		fmt.Fprintf(&buf, "- URL: %s\n", result.URL)
		fmt.Fprintf(&buf, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&buf, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&buf, "  CONTENT: %s\n", result.Content)
	}

	return buf.String()
}
