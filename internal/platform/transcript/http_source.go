package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/httpx"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// HTTPSource reads segments from a timed-text service:
//
//	GET {base}/v1/transcripts/{sourceID}?lang=en
//	200 {"segments":[{"text":"...","offset":1200,"duration":3400}]}
//	404 when the video has no captions
type HTTPSource struct {
	log        *logger.Logger
	baseURL    string
	lang       string
	maxRetries int
	http       *http.Client
}

type httpSourceError struct {
	StatusCode int
	Body       string
}

func (e *httpSourceError) Error() string {
	return fmt.Sprintf("transcript service status=%d body=%q", e.StatusCode, e.Body)
}

func (e *httpSourceError) HTTPStatusCode() int { return e.StatusCode }

func NewHTTPSource(log *logger.Logger, baseURL, lang string) (*HTTPSource, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("TRANSCRIPT_API_URL is required")
	}
	if lang == "" {
		lang = "en"
	}
	return &HTTPSource{
		log:        log.With("service", "TranscriptHTTPSource"),
		baseURL:    baseURL,
		lang:       lang,
		maxRetries: 2,
		http:       &http.Client{Timeout: 20 * time.Second},
	}, nil
}

type segmentsResponse struct {
	Segments []struct {
		Text     string  `json:"text"`
		Offset   float64 `json:"offset"`
		Duration float64 `json:"duration"`
	} `json:"segments"`
}

func (s *HTTPSource) Segments(ctx context.Context, sourceID string) ([]video.Segment, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		segs, err := s.fetchOnce(ctx, sourceID)
		if err == nil {
			return segs, nil
		}
		lastErr = err
		if errors.Is(err, ErrNotAvailable) || !httpx.IsRetryableError(err) || attempt == s.maxRetries {
			break
		}
		s.log.Warn("Transcript fetch failed; retrying", "source_id", sourceID, "attempt", attempt+1, "error", err)
		if err := httpx.Sleep(ctx, httpx.Backoff(500*time.Millisecond, attempt, 4*time.Second)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *HTTPSource) fetchOnce(ctx context.Context, sourceID string) ([]video.Segment, error) {
	endpoint := fmt.Sprintf("%s/v1/transcripts/%s?lang=%s", s.baseURL, url.PathEscape(sourceID), url.QueryEscape(s.lang))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpx.DrainClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, sourceID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &httpSourceError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded segmentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	out := make([]video.Segment, 0, len(decoded.Segments))
	for _, seg := range decoded.Segments {
		out = append(out, video.Segment{
			Text:       seg.Text,
			OffsetMs:   int64(seg.Offset),
			DurationMs: int64(seg.Duration),
		})
	}
	return out, nil
}
