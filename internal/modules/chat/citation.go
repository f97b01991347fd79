package chat

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Citation tokens have the form
//
//	[video_id: <ID>, time: <SECONDS>]
//
// where SECONDS is a non-negative decimal optionally suffixed with "s".
// Whitespace around the punctuation is optional. IDs are [A-Za-z0-9_-]+.

type TokenKind int

const (
	TokenText TokenKind = iota
	TokenCitation
)

// Token is a run of plain text or one well-formed citation. Text always
// holds the exact source bytes.
type Token struct {
	Kind    TokenKind
	Text    string
	VideoID string
	Seconds float64
}

type scanState int

const (
	stVideoKey scanState = iota
	stVideoColon
	stIDStart
	stID
	stComma
	stTimeKey
	stTimeColon
	stSecondsStart
	stSeconds
	stFractionStart
	stFraction
	stClose
)

const (
	videoKey = "video_id"
	timeKey  = "time"
)

// Tokenize splits text into plain runs and citation tokens, left to right.
// A '[' that does not begin a well-formed citation is plain text.
func Tokenize(text string) []Token {
	var (
		out   []Token
		text0 int
	)
	flush := func(end int) {
		if end > text0 {
			out = append(out, Token{Kind: TokenText, Text: text[text0:end]})
		}
	}
	for i := 0; i < len(text); {
		if text[i] != '[' {
			i++
			continue
		}
		tok, end, ok := scanCitation(text, i)
		if !ok {
			i++
			continue
		}
		flush(i)
		out = append(out, tok)
		i, text0 = end, end
	}
	flush(len(text))
	return out
}

// scanCitation runs the citation automaton from the '[' at start. On success
// it returns the token and the index just past the closing ']'.
func scanCitation(s string, start int) (Token, int, bool) {
	var (
		st       = stVideoKey
		keyPos   int
		idStart  int
		idEnd    int
		numStart int
		numEnd   int
	)
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch st {
		case stVideoKey:
			if keyPos == 0 && isSpace(c) {
				continue
			}
			if c != videoKey[keyPos] {
				return Token{}, 0, false
			}
			keyPos++
			if keyPos == len(videoKey) {
				st = stVideoColon
			}
		case stVideoColon:
			switch {
			case isSpace(c):
			case c == ':':
				st = stIDStart
			default:
				return Token{}, 0, false
			}
		case stIDStart:
			switch {
			case isSpace(c):
			case isIDByte(c):
				idStart, st = i, stID
			default:
				return Token{}, 0, false
			}
		case stID:
			switch {
			case isIDByte(c):
			case isSpace(c):
				idEnd, st = i, stComma
			case c == ',':
				idEnd, st = i, stTimeKey
				keyPos = 0
			default:
				return Token{}, 0, false
			}
		case stComma:
			switch {
			case isSpace(c):
			case c == ',':
				st, keyPos = stTimeKey, 0
			default:
				return Token{}, 0, false
			}
		case stTimeKey:
			if keyPos == 0 && isSpace(c) {
				continue
			}
			if c != timeKey[keyPos] {
				return Token{}, 0, false
			}
			keyPos++
			if keyPos == len(timeKey) {
				st = stTimeColon
			}
		case stTimeColon:
			switch {
			case isSpace(c):
			case c == ':':
				st = stSecondsStart
			default:
				return Token{}, 0, false
			}
		case stSecondsStart:
			switch {
			case isSpace(c):
			case isDigit(c):
				numStart, st = i, stSeconds
			default:
				return Token{}, 0, false
			}
		case stSeconds, stFraction:
			switch {
			case isDigit(c):
			case c == '.' && st == stSeconds:
				st = stFractionStart
			case c == 's':
				numEnd, st = i, stClose
			case isSpace(c):
				numEnd, st = i, stClose
			case c == ']':
				return finishCitation(s, start, i, idStart, idEnd, numStart, i)
			default:
				return Token{}, 0, false
			}
		case stFractionStart:
			if !isDigit(c) {
				return Token{}, 0, false
			}
			st = stFraction
		case stClose:
			switch {
			case isSpace(c):
			case c == ']':
				return finishCitation(s, start, i, idStart, idEnd, numStart, numEnd)
			default:
				return Token{}, 0, false
			}
		}
	}
	return Token{}, 0, false
}

func finishCitation(s string, start, closeAt, idStart, idEnd, numStart, numEnd int) (Token, int, bool) {
	secs, err := strconv.ParseFloat(s[numStart:numEnd], 64)
	if err != nil || secs < 0 || math.IsInf(secs, 0) {
		return Token{}, 0, false
	}
	return Token{
		Kind:    TokenCitation,
		Text:    s[start : closeAt+1],
		VideoID: s[idStart:idEnd],
		Seconds: secs,
	}, closeAt + 1, true
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIDByte(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-'
}

// CitationToken formats a citation in the grammar the model is asked to emit.
func CitationToken(videoID string, seconds float64) string {
	return fmt.Sprintf("[video_id: %s, time: %ss]", videoID, strconv.FormatFloat(seconds, 'f', -1, 64))
}

// VideoRef is what the renderer needs to know about a cited video.
type VideoRef struct {
	ID        string
	Title     string
	SourceURL string
}

// Citation is a rendered reference marker.
type Citation struct {
	Number    int     `json:"number"`
	VideoID   string  `json:"video_id"`
	Title     string  `json:"title"`
	Seconds   float64 `json:"seconds"`
	Timestamp string  `json:"timestamp"`
	URL       string  `json:"url"`
}

// Segment is either plain text or a resolved citation.
type Segment struct {
	Text     string    `json:"text,omitempty"`
	Citation *Citation `json:"citation,omitempty"`
}

type Rendered struct {
	Segments []Segment `json:"segments"`
}

// Render resolves citation tokens against videos. Known ids become sequential
// markers starting at 1, one number per token. Tokens naming an unknown id
// stay in the output as their literal text.
func Render(text string, videos map[string]VideoRef) Rendered {
	var (
		out  Rendered
		next = 1
	)
	appendText := func(s string) {
		if s == "" {
			return
		}
		if n := len(out.Segments); n > 0 && out.Segments[n-1].Citation == nil {
			out.Segments[n-1].Text += s
			return
		}
		out.Segments = append(out.Segments, Segment{Text: s})
	}
	for _, tok := range Tokenize(text) {
		if tok.Kind == TokenText {
			appendText(tok.Text)
			continue
		}
		ref, ok := videos[tok.VideoID]
		if !ok {
			appendText(tok.Text)
			continue
		}
		out.Segments = append(out.Segments, Segment{Citation: &Citation{
			Number:    next,
			VideoID:   tok.VideoID,
			Title:     ref.Title,
			Seconds:   tok.Seconds,
			Timestamp: FormatTimestamp(tok.Seconds),
			URL:       TimestampURL(ref.SourceURL, tok.Seconds),
		}})
		next++
	}
	return out
}

// Citations lists the resolved markers in order.
func (r Rendered) Citations() []Citation {
	var out []Citation
	for _, s := range r.Segments {
		if s.Citation != nil {
			out = append(out, *s.Citation)
		}
	}
	return out
}

// Markdown renders markers as numbered links.
func (r Rendered) Markdown() string {
	var b strings.Builder
	for _, s := range r.Segments {
		if c := s.Citation; c != nil {
			fmt.Fprintf(&b, "[[%d]](%s \"%s at %s\")", c.Number, c.URL, escapeTitle(c.Title), c.Timestamp)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// PlainLinks renders markers as titled links, for exports.
func (r Rendered) PlainLinks() string {
	var b strings.Builder
	for _, s := range r.Segments {
		if c := s.Citation; c != nil {
			fmt.Fprintf(&b, "[%s (%s)](%s)", c.Title, c.Timestamp, c.URL)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// ExportLinks converts every resolvable citation in text to a plain link.
func ExportLinks(text string, videos map[string]VideoRef) string {
	return Render(text, videos).PlainLinks()
}

// TimestampURL appends t=<floor(seconds)>s to a source URL.
func TimestampURL(sourceURL string, seconds float64) string {
	sep := "?"
	if strings.Contains(sourceURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%ds", sourceURL, sep, int64(math.Floor(seconds)))
}

// FormatTimestamp renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatTimestamp(seconds float64) string {
	total := int64(math.Floor(seconds))
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func escapeTitle(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
