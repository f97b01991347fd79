package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
	"github.com/yungbote/vidrag-backend/internal/platform/index"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestCreateCollectionAlreadyExists(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{}, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut || r.URL.Path != "/collections/video-abc" {
			t.Fatalf("request: got=%s %s", r.Method, r.URL.Path)
		}
		var body map[string]map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["vectors"]["distance"] != "Cosine" {
			t.Fatalf("distance: want=Cosine got=%v", body["vectors"]["distance"])
		}
		return statusResponse(http.StatusConflict, `{"status":{"error":"Collection video-abc already exists!"}}`), nil
	})
	err := ix.CreateCollection(context.Background(), "video-abc")
	if !errors.Is(err, index.ErrCollectionExists) {
		t.Fatalf("want ErrCollectionExists got=%v", err)
	}
}

func TestAddDocumentSkipsExistingPoint(t *testing.T) {
	emb := &fakeEmbedder{}
	ix := newTestIndex(t, emb, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/video-abc/points" || r.Method != http.MethodPost {
			t.Fatalf("unexpected call: %s %s", r.Method, r.URL.String())
		}
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.IDs) != 1 || body.IDs[0] != pointID("video-abc", "abc/chunk_0_0s.txt") {
			t.Fatalf("ids: got=%v", body.IDs)
		}
		return okResponse(t, []map[string]any{{"id": body.IDs[0]}}), nil
	})
	err := ix.AddDocument(context.Background(), "video-abc", index.Document{Path: "abc/chunk_0_0s.txt", Text: "hello"})
	if !errors.Is(err, index.ErrDocumentExists) {
		t.Fatalf("want ErrDocumentExists got=%v", err)
	}
	if emb.calls != 0 {
		t.Fatalf("embed calls: want=0 got=%d", emb.calls)
	}
}

func TestAddDocumentUpsertsWithDeterministicID(t *testing.T) {
	var upsert map[string]any
	ix := newTestIndex(t, &fakeEmbedder{}, func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/collections/video-abc/points":
			return okResponse(t, []any{}), nil
		case r.Method == http.MethodPut && r.URL.Path == "/collections/video-abc/points":
			if r.URL.RawQuery != "wait=true" {
				t.Fatalf("query: want=wait=true got=%q", r.URL.RawQuery)
			}
			if err := json.NewDecoder(r.Body).Decode(&upsert); err != nil {
				t.Fatalf("decode: %v", err)
			}
			return okResponse(t, map[string]any{"status": "acknowledged"}), nil
		}
		t.Fatalf("unexpected call: %s %s", r.Method, r.URL.Path)
		return nil, nil
	})
	doc := index.Document{Path: "abc/chunk_10_12.5s.txt", Text: "passage", Metadata: map[string]any{"video_id": "abc"}}
	if err := ix.AddDocument(context.Background(), "video-abc", doc); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	points := upsert["points"].([]any)
	first := points[0].(map[string]any)
	if first["id"] != pointID("video-abc", doc.Path) {
		t.Fatalf("point id: got=%v", first["id"])
	}
	payload := first["payload"].(map[string]any)
	if payload[payloadPathKey] != doc.Path || payload[payloadTextKey] != "passage" || payload["video_id"] != "abc" {
		t.Fatalf("payload: got=%v", payload)
	}
	if _, mutated := doc.Metadata[payloadPathKey]; mutated {
		t.Fatalf("input metadata mutated")
	}
}

func TestTopSnippetsMapsPayloadAndMissingScore(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{}, func(r *http.Request) (*http.Response, error) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["limit"] != float64(4) {
			t.Fatalf("limit: want=4 got=%v", body["limit"])
		}
		return okResponse(t, []map[string]any{
			{"id": "a", "score": 0.8, "payload": map[string]any{"path": "v/chunk_0_0s.txt", "text": "one"}},
			{"id": "b", "payload": map[string]any{"path": "v/chunk_10_30s.txt", "text": "two"}},
			{"id": "c", "score": 0.5, "payload": map[string]any{}},
		}), nil
	})
	got, err := ix.TopSnippets(context.Background(), "video-v", "query", 4)
	if err != nil {
		t.Fatalf("TopSnippets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: want=2 got=%d", len(got))
	}
	if !got[0].HasScore() || *got[0].Score != 0.8 || got[0].Content != "one" {
		t.Fatalf("first: got=%+v", got[0])
	}
	if got[1].HasScore() {
		t.Fatalf("second should carry no score")
	}
}

func TestTopSnippetsErrorMapping(t *testing.T) {
	notFound := newTestIndex(t, &fakeEmbedder{}, func(r *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusNotFound, `{"status":{"error":"Not found: Collection video-x doesn't exist!"}}`), nil
	})
	_, err := notFound.TopSnippets(context.Background(), "video-x", "q", 3)
	if !errors.Is(err, index.ErrCollectionNotFound) || errors.Is(err, index.ErrUnavailable) {
		t.Fatalf("404: want ErrCollectionNotFound only, got=%v", err)
	}

	down := newTestIndex(t, &fakeEmbedder{}, func(r *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection refused")
	})
	_, err = down.TopSnippets(context.Background(), "video-x", "q", 3)
	if !errors.Is(err, index.ErrUnavailable) {
		t.Fatalf("transport: want ErrUnavailable got=%v", err)
	}

	embedFail := newTestIndex(t, &fakeEmbedder{err: errors.New("quota")}, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no http call expected")
		return nil, nil
	})
	_, err = embedFail.TopSnippets(context.Background(), "video-x", "q", 3)
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorEmbedFailed {
		t.Fatalf("embed: want embed_failed got=%v", err)
	}
	if !errors.Is(err, index.ErrEmbedding) || !errors.Is(err, index.ErrUnavailable) {
		t.Fatalf("embed: want ErrEmbedding and ErrUnavailable got=%v", err)
	}
}

func TestSearchVectorSkipsEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	var body map[string]any
	ix := newTestIndex(t, emb, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode search body: %v", err)
		}
		return okResponse(t, []map[string]any{}), nil
	})
	vec, err := ix.EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	for _, c := range []string{"video-a", "video-b"} {
		if _, err := ix.SearchVector(context.Background(), c, vec, 3); err != nil {
			t.Fatalf("SearchVector %s: %v", c, err)
		}
	}
	if emb.calls != 1 {
		t.Fatalf("embed calls: want=1 got=%d", emb.calls)
	}
	if got := body["limit"]; got != float64(3) {
		t.Fatalf("limit: want=3 got=%v", got)
	}
	if _, err := ix.SearchVector(context.Background(), "video-a", nil, 3); err == nil {
		t.Fatalf("empty vector: want error")
	}
}

func TestNormalizeScoreEuclid(t *testing.T) {
	ix := &Index{cfg: Config{Distance: "Euclid"}}
	if got := ix.normalizeScore(1); got != 0.5 {
		t.Fatalf("euclid: want=0.5 got=%v", got)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		cfg  Config
		code ConfigErrorCode
	}{
		{Config{}, ConfigErrorMissingURL},
		{Config{URL: "qdrant:6333", VectorDim: 3, Distance: "Cosine"}, ConfigErrorInvalidURL},
		{Config{URL: "http://q:6333", Distance: "Cosine"}, ConfigErrorInvalidVectorDim},
		{Config{URL: "http://q:6333", VectorDim: 3, Distance: "hamming"}, ConfigErrorInvalidDistance},
	}
	for _, tc := range cases {
		var ce *ConfigError
		if err := ValidateConfig(tc.cfg); !errors.As(err, &ce) || ce.Code != tc.code {
			t.Fatalf("%+v: want=%s got=%v", tc.cfg, tc.code, err)
		}
	}
	if err := ValidateConfig(Config{URL: "http://q:6333", VectorDim: 3, Distance: "dot"}); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}

func newTestIndex(t *testing.T, emb Embedder, roundTrip func(*http.Request) (*http.Response, error)) *Index {
	t.Helper()
	return &Index{
		log:      newTestLogger(t),
		cfg:      Config{URL: "http://qdrant.local", VectorDim: 3, Distance: "Cosine"},
		baseURL:  "http://qdrant.local",
		embedder: emb,
		http:     &http.Client{Transport: roundTripFunc(roundTrip)},
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"result": result, "status": "ok", "time": 0.001})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{StatusCode: http.StatusOK, Header: make(http.Header), Body: io.NopCloser(bytes.NewReader(raw))}
}

func statusResponse(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Header: make(http.Header), Body: io.NopCloser(strings.NewReader(body))}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
