package chat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/vidrag-backend/internal/modules/ingestion"
	"github.com/yungbote/vidrag-backend/internal/modules/retrieval"
)

// NothingFound is the context handed to the model when retrieval came back
// empty. It is never an empty string.
const NothingFound = "NO RELEVANT PASSAGES FOUND.\nNone of the selected videos contain passages relevant to this question."

// ContextPassage is one numbered entry of the assembled context.
type ContextPassage struct {
	Ordinal      int     `json:"ordinal"`
	VideoID      string  `json:"video_id"`
	StartSeconds float64 `json:"start_seconds"`
	Text         string  `json:"text"`
}

// AssembledContext is the only material generation may draw on.
type AssembledContext struct {
	Passages []ContextPassage
	Text     string
}

func (c AssembledContext) Empty() bool { return len(c.Passages) == 0 }

// Assemble numbers the ranked hits in order and renders them as a delimited
// block. Video id and start time come from the passage path key; a hit whose
// path does not parse falls back to the video it was retrieved for at 0s.
func Assemble(hits []retrieval.Hit) AssembledContext {
	if len(hits) == 0 {
		return AssembledContext{Text: NothingFound}
	}
	out := AssembledContext{Passages: make([]ContextPassage, 0, len(hits))}
	var b strings.Builder
	for i, h := range hits {
		p := ContextPassage{Ordinal: i + 1, VideoID: h.VideoID, Text: strings.TrimSpace(h.Content)}
		if info, err := ingestion.ParsePathKey(h.Path); err == nil {
			p.VideoID, p.StartSeconds = info.VideoID, info.StartSeconds
		}
		out.Passages = append(out.Passages, p)

		fmt.Fprintf(&b, "<passage index=\"%d\" video_id=\"%s\" time=\"%s\">\n%s\n</passage>\n",
			p.Ordinal, p.VideoID, strconv.FormatFloat(p.StartSeconds, 'f', -1, 64), p.Text)
	}
	out.Text = strings.TrimRight(b.String(), "\n")
	return out
}
