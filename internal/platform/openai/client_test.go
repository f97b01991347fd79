package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	temp := 0.2
	c, err := NewClient(logger.Nop(), Config{
		APIKey:      "sk-test",
		BaseURL:     "https://api.test",
		Model:       "gpt-test",
		EmbedModel:  "embed-test",
		Timeout:     time.Second,
		MaxRetries:  2,
		Temperature: &temp,
	})
	require.NoError(t, err)
	return c.WithHTTPClient(&http.Client{Transport: rt})
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", " "}, req.Input)
		return respond(200, `{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`), nil
	})
	vecs, err := c.Embed(context.Background(), []string{" a ", ""})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vecs)
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			resp := respond(503, "busy")
			resp.Header.Set("Retry-After", "0")
			return resp, nil
		}
		return respond(200, `{"data":[{"index":0,"embedding":[1]}]}`), nil
	})
	_, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return respond(400, `{"error":"bad"}`), nil
	})
	_, err := c.Embed(context.Background(), []string{"x"})
	var httpErr *openAIHTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 400, httpErr.HTTPStatusCode())
	assert.Equal(t, int32(1), calls.Load())
}

const streamBody = "event: response.created\ndata: {\"type\":\"response.created\"}\n\n" +
	"data: {\"type\":\"response.output_text.delta\",\"delta\":\"Hello\"}\n\n" +
	": keepalive\n\n" +
	"data: {\"type\":\"response.output_text.delta\",\"delta\":\" world\"}\n\n" +
	"data: {\"type\":\"response.completed\"}\n\n" +
	"data: [DONE]\n\n"

func TestStreamChatForwardsDeltas(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		var req responsesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "be grounded", req.Instructions)
		assert.Equal(t, []Message{{Role: "user", Content: "hi"}}, req.Input)
		return respond(200, streamBody), nil
	})
	var deltas []string
	text, err := c.StreamChat(context.Background(), " be grounded ", []Message{{Role: "user", Content: "hi"}}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []string{"Hello", " world"}, deltas)
}

func TestStreamChatDropsRejectedTemperature(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var req responsesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if calls.Add(1) == 1 {
			require.NotNil(t, req.Temperature)
			return respond(400, `{"error":{"message":"Unsupported parameter: 'temperature'"}}`), nil
		}
		assert.Nil(t, req.Temperature)
		return respond(200, streamBody), nil
	})
	_, err := c.StreamChat(context.Background(), "s", nil, nil)
	require.NoError(t, err)
	assert.True(t, c.modelIsNoTemp("gpt-test"))
}

func TestStreamChatSurfacesStreamErrors(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(200, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"x\"}\n\ndata: {\"type\":\"error\",\"error\":{\"code\":\"server_error\"}}\n\n"), nil
	})
	_, err := c.StreamChat(context.Background(), "s", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_error")
}

func TestStreamChatRequiresCompletion(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(200, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"half an ans\"}\n\n"), nil
	})
	var deltas []string
	text, err := c.StreamChat(context.Background(), "s", nil, func(d string) { deltas = append(deltas, d) })
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, "half an ans", text)
	assert.Equal(t, []string{"half an ans"}, deltas)
}

func TestEventScannerJoinsDataLines(t *testing.T) {
	es := newEventScanner(strings.NewReader("event: a\r\ndata: one\r\ndata: two\r\n\r\n: comment\n\nevent: b\ndata: tail"))
	require.True(t, es.Next())
	name, data := es.Event()
	assert.Equal(t, "a", name)
	assert.Equal(t, "one\ntwo", data)

	require.True(t, es.Next())
	name, data = es.Event()
	assert.Equal(t, "b", name)
	assert.Equal(t, "tail", data)

	assert.False(t, es.Next())
	assert.NoError(t, es.Err())
}

func TestStreamChatCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		go func() {
			_, _ = pw.Write([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"a\"}\n\n"))
			<-r.Context().Done()
			_ = pw.CloseWithError(r.Context().Err())
		}()
		return &http.Response{StatusCode: 200, Header: http.Header{}, Body: pr}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	text, err := c.StreamChat(ctx, "s", nil, func(string) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "a", text)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "k")
	t.Setenv("OPENAI_TEMPERATURE", "off")
	t.Setenv("OPENAI_BASE_URL", "http://local/")
	temp := 0.5
	cfg := ConfigFromEnv(Config{Temperature: &temp})
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, "http://local", cfg.BaseURL)
	assert.Nil(t, cfg.Temperature)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbedModel)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, Config{}.Validate())
}
