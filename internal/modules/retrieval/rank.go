package retrieval

import (
	"sort"

	"github.com/yungbote/vidrag-backend/internal/platform/index"
)

// Hit is a snippet tagged with the scoped video whose collection returned it.
type Hit struct {
	VideoID string
	index.Snippet
}

// Rank drops hits without a score, orders the rest by score descending
// (ties keep their pooled order) and keeps the first topN regardless of
// which video they came from. topN <= 0 keeps everything.
func Rank(pooled []Hit, topN int) []Hit {
	out := make([]Hit, 0, len(pooled))
	for _, h := range pooled {
		if h.HasScore() {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Score > *out[j].Score
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
