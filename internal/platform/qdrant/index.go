package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
	"github.com/yungbote/vidrag-backend/internal/platform/index"
)

const (
	payloadPathKey    = "path"
	payloadTextKey    = "text"
	maxErrorBodyBytes = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("6b1c3f0e-9a55-4f1e-8d0f-2f1d3c7a9e41")

// Embedder turns passage and query text into vectors.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Index is an index.Client backed by the Qdrant REST API. Every video gets
// its own collection; point ids are derived from the passage path so
// re-inserting a passage never creates a second point.
type Index struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	embedder Embedder
	http     *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   *float64        `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func New(log *logger.Logger, cfg Config, embedder Embedder) (*Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	ix := &Index{
		log:      log.With("service", "QdrantIndex"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		embedder: embedder,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
	log.Info("Qdrant index selected", "url", ix.baseURL, "vector_dim", cfg.VectorDim, "distance", cfg.Distance)
	return ix, nil
}

// Ready probes /readyz.
func (ix *Index) Ready(ctx context.Context) error {
	const op = "ready"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ix.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	ix.authorize(req)
	resp, err := ix.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

func (ix *Index) CreateCollection(ctx context.Context, name string) error {
	const op = "create_collection"
	if strings.TrimSpace(name) == "" {
		return opErr(op, OperationErrorValidation, "collection name required", nil)
	}
	req := map[string]any{
		"vectors": map[string]any{
			"size":     ix.cfg.VectorDim,
			"distance": canonicalDistance(ix.cfg.Distance),
		},
	}
	err := ix.doJSON(ctx, op, http.MethodPut, collectionPath(name, ""), req, nil)
	if err == nil {
		ix.log.Info("Collection created", "collection", name)
		return nil
	}
	if isStatus(err, http.StatusConflict) || strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("%w: %s", index.ErrCollectionExists, name)
	}
	return err
}

func (ix *Index) AddDocument(ctx context.Context, collection string, doc index.Document) error {
	const op = "add_document"
	path := strings.TrimSpace(doc.Path)
	if path == "" {
		return opErr(op, OperationErrorValidation, "document path required", nil)
	}
	id := pointID(collection, path)

	var existing []json.RawMessage
	if err := ix.doJSON(ctx, op, http.MethodPost, collectionPath(collection, "/points"), map[string]any{
		"ids":          []string{id},
		"with_payload": false,
		"with_vector":  false,
	}, &existing); err != nil {
		return err
	}
	if len(existing) > 0 {
		return index.ErrDocumentExists
	}

	vectors, err := ix.embedder.Embed(ctx, []string{doc.Text})
	if err != nil {
		return opErr(op, OperationErrorEmbedFailed, "embed passage failed", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != ix.cfg.VectorDim {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("embedding dimension mismatch: expected=%d", ix.cfg.VectorDim), nil)
	}

	payload := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	payload[payloadPathKey] = path
	payload[payloadTextKey] = doc.Text

	return ix.doJSON(ctx, op, http.MethodPut, collectionPath(collection, "/points?wait=true"), map[string]any{
		"points": []map[string]any{{
			"id":      id,
			"vector":  vectors[0],
			"payload": payload,
		}},
	}, nil)
}

func (ix *Index) TopSnippets(ctx context.Context, collection, query string, k int) ([]index.Snippet, error) {
	vector, err := ix.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.SearchVector(ctx, collection, vector, k)
}

// EmbedQuery embeds one search query.
func (ix *Index) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	const op = "embed_query"
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, opErr(op, OperationErrorEmbedFailed, "embed query failed", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, opErr(op, OperationErrorValidation, "empty query embedding", nil)
	}
	return vectors[0], nil
}

func (ix *Index) SearchVector(ctx context.Context, collection string, vector []float32, k int) ([]index.Snippet, error) {
	const op = "search"
	if k <= 0 {
		k = 10
	}
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "empty query vector", nil)
	}

	var raw []qdrantSearchResultItem
	if err := ix.doJSON(ctx, op, http.MethodPost, collectionPath(collection, "/points/search"), map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}, &raw); err != nil {
		return nil, err
	}

	out := make([]index.Snippet, 0, len(raw))
	for _, item := range raw {
		path, _ := item.Payload[payloadPathKey].(string)
		text, _ := item.Payload[payloadTextKey].(string)
		if strings.TrimSpace(path) == "" {
			continue
		}
		s := index.Snippet{Content: text, Path: path}
		if item.Score != nil {
			s.Score = index.Score(ix.normalizeScore(*item.Score))
		}
		out = append(out, s)
	}
	return out, nil
}

func (ix *Index) authorize(req *http.Request) {
	if ix.cfg.APIKey != "" {
		req.Header.Set("api-key", ix.cfg.APIKey)
	}
}

func (ix *Index) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, ix.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	ix.authorize(req)

	resp, err := ix.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: statusErr}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func collectionPath(name, suffix string) string {
	return "/collections/" + url.PathEscape(name) + suffix
}

func pointID(collection, path string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(collection+"|"+path)).String()
}

func canonicalDistance(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "dot":
		return "Dot"
	case "euclid":
		return "Euclid"
	case "manhattan":
		return "Manhattan"
	default:
		return "Cosine"
	}
}

// normalizeScore keeps "higher is more relevant" for distance metrics.
func (ix *Index) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(ix.cfg.Distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
