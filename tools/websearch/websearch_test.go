package websearch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/tools/websearch"
	"github.com/effective-security/toolgate/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Tool(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "testkey")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req tavilyModels.SearchRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		assert.NoError(t, err)

		assert.Equal(t, "What is capital of France", req.Query)
		assert.Equal(t, 3, req.MaxResults)

		resp := websearch.SearchResult{
			Results: []tavilyModels.SearchResult{
				{Title: "Test Result", URL: "https://example.com", Content: "Test content", Score: 0.9},
			},
		}
		if req.IncludeAnswer {
			resp.Answer = "Paris"
		}

		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	ctx := context.Background()

	tool, err := websearch.New()
	require.NoError(t, err)
	tool.WithBaseURL(server.URL).WithHTTPClient(server.Client())

	assert.Equal(t, websearch.ToolName, tool.Name())
	assert.Contains(t, tool.Description(), `web search`)
	assert.True(t, tool.Idempotent())

	params := utils.ToJSONIndent(tool.Parameters())
	expParams := `{
	"properties": {
		"query": {
			"type": "string",
			"title": "Search Query",
			"description": "The query to search web."
		},
		"max_results": {
			"type": "integer",
			"title": "Max Results",
			"description": "Maximum number of results to return (default: 5)."
		}
	},
	"type": "object",
	"required": [
		"query"
	]
}`
	assert.Equal(t, expParams, params)

	input := &websearch.SearchRequest{
		Query:      "What is capital of France",
		MaxResults: 3,
	}

	resp, err := tool.Run(ctx, input)
	require.NoError(t, err)
	exp := `ANSWER: Paris
- URL: https://example.com
  TITLE: Test Result
  SCORE: 0.900000
  CONTENT: Test content
`
	assert.Equal(t, exp, resp.String())

	bs, err := tool.Call(ctx, map[string]any{"query": "What is capital of France", "max_results": 3})
	require.NoError(t, err)
	exp = `{"results":[{"title":"Test Result","url":"https://example.com","content":"Test content","score":0.9}],"answer":"Paris"}`
	assert.Equal(t, exp, string(bs))
}

func Test_Tool_EmptyQuery(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "testkey")

	tool, err := websearch.New()
	require.NoError(t, err)

	_, err = tool.Run(context.Background(), &websearch.SearchRequest{})
	require.Error(t, err)
	assert.False(t, toolcall.IsRetryable(err))
}

func Test_Tool_NoAPIKey(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "")

	_, err := websearch.New()
	assert.EqualError(t, err, "TAVILY_API_KEY is not set")
}

func Test_Tool_ClientTimeoutHonored(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "testkey")

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	tool, err := websearch.New()
	require.NoError(t, err)
	tool.WithBaseURL(server.URL).WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond})

	started := time.Now()
	_, err = tool.Run(context.Background(), &websearch.SearchRequest{Query: "anything"})
	require.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second, "caller timeout must cut the request short")
	assert.True(t, toolcall.IsRetryable(err), "transport fault should be retryable")
}

func Test_Tool_RetryableUpstream(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "testkey")

	status := http.StatusInternalServerError
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	tool, err := websearch.New()
	require.NoError(t, err)
	tool.WithBaseURL(server.URL).WithHTTPClient(server.Client())

	req := &websearch.SearchRequest{Query: "anything"}

	_, err = tool.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, toolcall.IsRetryable(err), "5xx should be retryable")

	status = http.StatusTooManyRequests
	_, err = tool.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, toolcall.IsRetryable(err), "429 should be retryable")

	status = http.StatusUnauthorized
	_, err = tool.Run(context.Background(), req)
	require.Error(t, err)
	assert.False(t, toolcall.IsRetryable(err), "auth failures are terminal")
	assert.EqualError(t, err, "web search authentication failed")
}
