package ingestion

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseSourceID accepts a bare YouTube id or any of the usual watch, short
// link, shorts and embed URLs.
func ParseSourceID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if sourceIDPattern.MatchString(s) {
		return s, nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		path := strings.Trim(u.Path, "/")
		switch {
		case path == "watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(path, "shorts/"), strings.HasPrefix(path, "embed/"), strings.HasPrefix(path, "live/"):
			id = strings.SplitN(path, "/", 3)[1]
		}
	}
	if !sourceIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, input)
	}
	return id, nil
}

// SourceURL is the canonical watch URL for a source id.
func SourceURL(sourceID string) string {
	return "https://www.youtube.com/watch?v=" + sourceID
}
