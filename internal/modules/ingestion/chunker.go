package ingestion

import (
	"fmt"
	"strings"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
)

const DefaultGroupSize = 10

// Chunk groups consecutive segments, at most groupSize per passage, joining
// their text with single spaces. Passage count is ceil(len(segments)/groupSize).
// The result is verified to cover the transcript before it is returned.
func Chunk(videoID string, segments []video.Segment, groupSize int) ([]video.Passage, error) {
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	passages := make([]video.Passage, 0, (len(segments)+groupSize-1)/groupSize)
	for start := 0; start < len(segments); start += groupSize {
		end := min(start+groupSize, len(segments))
		group := segments[start:end]

		texts := make([]string, len(group))
		for i, s := range group {
			texts[i] = s.Text
		}
		first, last := group[0], group[len(group)-1]
		startSec := msToSeconds(first.OffsetMs)
		passages = append(passages, video.Passage{
			VideoID:    videoID,
			StartIndex: start,
			Text:       strings.Join(texts, " "),
			StartTime:  startSec,
			EndTime:    msToSeconds(last.OffsetMs + last.DurationMs),
			Path:       PathKey(videoID, start, startSec),
		})
	}

	if len(passages) == 0 {
		return nil, ErrNoPassages
	}
	if err := VerifyCoverage(segments, passages); err != nil {
		return nil, err
	}
	return passages, nil
}

// VerifyCoverage checks that the passages reproduce the transcript text,
// ignoring the separators inserted between segments.
func VerifyCoverage(segments []video.Segment, passages []video.Passage) error {
	var want, got strings.Builder
	for _, s := range segments {
		want.WriteString(s.Text)
	}
	for _, p := range passages {
		got.WriteString(p.Text)
	}
	w := stripSpace(want.String())
	g := stripSpace(got.String())
	if w != g {
		return fmt.Errorf("%w: want %d chars got %d", ErrCoverage, len(w), len(g))
	}
	return nil
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func msToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}
