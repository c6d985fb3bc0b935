package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpzouying/starpath/pkg/apperr"
)

const sampleJSON = `{
  "applicationContext": {"type": "web application", "framework": "React", "description": "Todo app"},
  "steps": [
    {"description": "Open app", "action": "navigate", "element": "/todos"},
    {"description": "Type task", "action": "type", "element": "New task input", "expectedResult": "Text appears"}
  ],
  "edgeCases": ["Empty title"],
  "potentialIssues": []
}`

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "bare", input: `{"a":1}`, want: `{"a":1}`, wantOK: true},
		{name: "surrounded by prose", input: "Here is the analysis:\n{\"a\":{\"b\":2}}\nHope it helps.", want: `{"a":{"b":2}}`, wantOK: true},
		{name: "greedy to last brace", input: `x {"a":1} y {"b":2} z`, want: `{"a":1} y {"b":2}`, wantOK: true},
		{name: "no braces", input: "sorry, I cannot help", wantOK: false},
		{name: "reversed braces", input: "} nothing {", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult("Sure! Here you go:\n```json\n" + sampleJSON + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "React", res.ApplicationContext.Framework)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "Text appears", res.Steps[1].ExpectedResult)
	assert.Equal(t, []string{"Empty title"}, res.EdgeCases)
	assert.Empty(t, res.PotentialIssues)
}

func TestParseResult_NullFramework(t *testing.T) {
	res, err := ParseResult(`{"applicationContext":{"type":"web","framework":null,"description":"d"},"steps":[]}`)
	require.NoError(t, err)
	assert.Empty(t, res.ApplicationContext.Framework)

	res, err = ParseResult(`{"applicationContext":{"type":"web","framework":"null","description":"d"},"steps":[]}`)
	require.NoError(t, err)
	assert.Empty(t, res.ApplicationContext.Framework)
}

func TestParseResult_Errors(t *testing.T) {
	_, err := ParseResult("no json here")
	require.Error(t, err)
	assert.True(t, apperr.IsAnalysis(err))

	// 多段 JSON 时贪婪提取会失败，这是已知的局限
	_, err = ParseResult(`first {"a":1} then {"b":2}`)
	require.Error(t, err)
	assert.True(t, apperr.IsAnalysis(err))
}

func newMessagesServer(t *testing.T, status int, text string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.Unmarshal(body, &req)) && assert.Len(t, req.Messages, 1) {
			content := req.Messages[0].Content
			if assert.Len(t, content, 5, "两帧各一段文字加一张图，最后是指令") {
				assert.Equal(t, "[Snapshot 1 of 2]", content[0].Text)
				assert.Equal(t, "image", content[1].Type)
				assert.Equal(t, "[Snapshot 2 of 2]", content[2].Text)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			return
		}
		resp := map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 20},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Analyze(t *testing.T) {
	var calls int32
	srv := newMessagesServer(t, http.StatusOK, "Analysis follows.\n"+sampleJSON, &calls)

	c, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "claude-test"})
	require.NoError(t, err)

	res, err := c.Analyze(context.Background(), [][]byte{{0xFF, 0xD8, 0xFF}, {0xFF, 0xD8, 0xFF}})
	require.NoError(t, err)
	assert.Equal(t, "Todo app", res.ApplicationContext.Description)
	assert.Len(t, res.Steps, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_AnalyzeFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := newMessagesServer(t, http.StatusInternalServerError, "", &calls)

	c, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), [][]byte{{0xFF}, {0xFF}})
	require.Error(t, err)
	assert.True(t, apperr.IsAnalysis(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_UnparsableResponse(t *testing.T) {
	var calls int32
	srv := newMessagesServer(t, http.StatusOK, "I could not determine the flow.", &calls)

	c, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), [][]byte{{0xFF}, {0xFF}})
	require.Error(t, err)
	assert.True(t, apperr.IsAnalysis(err))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestClient_NoFrames(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1/"})
	require.NoError(t, err)
	_, err = c.Analyze(context.Background(), nil)
	assert.True(t, apperr.IsAnalysis(err))
}

func slowServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_OwnTimeoutIsAnalysisError(t *testing.T) {
	srv := slowServer(t)
	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), [][]byte{{0xFF}, {0xFF}})
	require.Error(t, err)
	assert.True(t, apperr.IsAnalysis(err))
}

func TestClient_CallerDeadlinePassesThrough(t *testing.T) {
	srv := slowServer(t)
	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Analyze(ctx, [][]byte{{0xFF}, {0xFF}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err))
}
