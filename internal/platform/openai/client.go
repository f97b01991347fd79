package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/vidrag-backend/internal/pkg/httpx"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// Message is one conversational turn sent to the Responses API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by ctx.
	streamClient *http.Client

	// Models that rejected the temperature parameter.
	noTempMu   sync.RWMutex
	noTempSeen map[string]struct{}
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		log:          log.With("service", "OpenAIClient"),
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
		noTempSeen:   map[string]struct{}{},
	}, nil
}

// WithHTTPClient replaces both transports; used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedTemperatureMessage(s string) bool {
	msg := strings.ToLower(s)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, hint := range []string{"unsupported parameter", "unknown parameter", "not supported", "does not support", "only the default", "unsupported_value"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *Client) do(ctx context.Context, path string, body any, out any) error {
	backoff := time.Second
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i, s := range inputs {
		if s = strings.TrimSpace(s); s == "" {
			s = " "
		}
		clean[i] = s
	}

	var resp embeddingsResponse
	if err := c.do(ctx, "/v1/embeddings", embeddingsRequest{Model: c.cfg.EmbedModel, Input: clean}, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for pos, d := range resp.Data {
		i := d.Index
		if i < 0 || i >= len(out) || out[i] != nil {
			i = pos
		}
		if i >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("openai embeddings missing index %d: requested=%d returned=%d model=%s", i, len(clean), len(resp.Data), c.cfg.EmbedModel)
		}
	}
	return out, nil
}

// -------------------- Responses API (streamed) --------------------

type responsesRequest struct {
	Model        string    `json:"model"`
	Instructions string    `json:"instructions,omitempty"`
	Input        []Message `json:"input"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Stream       bool      `json:"stream,omitempty"`
}

// ErrRefused is returned when the model declines to answer.
var ErrRefused = errors.New("model refused")

// StreamChat streams output_text deltas for system + history. Every non-empty
// delta is forwarded to onDelta and accumulated into the returned text. The
// error is nil only when the model signalled completion; cancelling ctx
// closes the connection and returns ctx.Err().
func (c *Client) StreamChat(ctx context.Context, system string, history []Message, onDelta func(delta string)) (string, error) {
	reqBody := responsesRequest{
		Model:        c.cfg.Model,
		Instructions: strings.TrimSpace(system),
		Input:        history,
		Stream:       true,
	}
	if c.cfg.Temperature != nil && !c.modelIsNoTemp(reqBody.Model) {
		reqBody.Temperature = c.cfg.Temperature
	}

	resp, raw, err := c.openStream(ctx, reqBody)
	if err != nil && reqBody.Temperature != nil && isUnsupportedTemperatureMessage(string(raw)) {
		c.noteNoTempModel(reqBody.Model)
		reqBody.Temperature = nil
		resp, _, err = c.openStream(ctx, reqBody)
	}
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := readResponseStream(resp.Body, onDelta)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return text, ctxErr
	}
	return text, err
}

func (c *Client) openStream(ctx context.Context, body responsesRequest) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, "/v1/responses", body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil, nil
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return nil, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
}

func (c *Client) modelIsNoTemp(model string) bool {
	c.noTempMu.RLock()
	defer c.noTempMu.RUnlock()
	_, ok := c.noTempSeen[strings.ToLower(model)]
	return ok
}

func (c *Client) noteNoTempModel(model string) {
	c.noTempMu.Lock()
	c.noTempSeen[strings.ToLower(model)] = struct{}{}
	c.noTempMu.Unlock()
}
