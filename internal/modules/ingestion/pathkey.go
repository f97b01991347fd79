package ingestion

import (
	"fmt"
	"strconv"
	"strings"
)

// PathKey is the index document key of a passage:
//
//	{videoID}/chunk_{startIndex}_{startSeconds}s.txt
//
// startSeconds is written in the shortest form that round-trips.
func PathKey(videoID string, startIndex int, startSeconds float64) string {
	return fmt.Sprintf("%s/chunk_%d_%ss.txt", videoID, startIndex, strconv.FormatFloat(startSeconds, 'f', -1, 64))
}

type PathInfo struct {
	VideoID      string
	StartIndex   int
	StartSeconds float64
}

// ParsePathKey recovers video id, segment index and start time from a path key.
func ParsePathKey(path string) (PathInfo, error) {
	slash := strings.LastIndexByte(path, '/')
	if slash <= 0 {
		return PathInfo{}, fmt.Errorf("path key %q: missing video id", path)
	}
	videoID, name := path[:slash], path[slash+1:]
	if !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, "s.txt") {
		return PathInfo{}, fmt.Errorf("path key %q: bad file name", path)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(name, "chunk_"), "s.txt")
	idxPart, secPart, ok := strings.Cut(body, "_")
	if !ok {
		return PathInfo{}, fmt.Errorf("path key %q: missing start time", path)
	}
	idx, err := strconv.Atoi(idxPart)
	if err != nil || idx < 0 {
		return PathInfo{}, fmt.Errorf("path key %q: bad start index", path)
	}
	secs, err := strconv.ParseFloat(secPart, 64)
	if err != nil || secs < 0 {
		return PathInfo{}, fmt.Errorf("path key %q: bad start time", path)
	}
	return PathInfo{VideoID: videoID, StartIndex: idx, StartSeconds: secs}, nil
}
