package openai

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrIncomplete means the stream closed without a response.completed event.
// The partial text must not be treated as an answer.
var ErrIncomplete = errors.New("response stream ended before completion")

const maxEventBytes = 1 << 20

// streamEvent is the subset of a Responses API stream event we act on.
type streamEvent struct {
	Type    string          `json:"type"`
	Delta   string          `json:"delta"`
	Refusal string          `json:"refusal"`
	Error   json.RawMessage `json:"error"`
}

// eventScanner splits a text/event-stream body into events. Comments and
// unknown fields are skipped; multi-line data is joined with "\n".
type eventScanner struct {
	sc    *bufio.Scanner
	name  string
	data  []string
	event string
	body  string
}

func newEventScanner(r io.Reader) *eventScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	return &eventScanner{sc: sc}
}

// Next advances to the next event. It returns false at end of input or on a
// read error; Err reports which.
func (s *eventScanner) Next() bool {
	for s.sc.Scan() {
		line := strings.TrimRight(s.sc.Text(), "\r")
		switch {
		case line == "":
			if s.emit() {
				return true
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			s.name = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			s.data = append(s.data, strings.TrimSpace(line[len("data:"):]))
		}
	}
	// A final event without its blank line still counts.
	return s.sc.Err() == nil && s.emit()
}

func (s *eventScanner) emit() bool {
	if len(s.data) == 0 {
		s.name = ""
		return false
	}
	s.event, s.body = s.name, strings.Join(s.data, "\n")
	s.name, s.data = "", nil
	return true
}

func (s *eventScanner) Event() (name, data string) { return s.event, s.body }

func (s *eventScanner) Err() error { return s.sc.Err() }

// readResponseStream forwards output_text deltas to onDelta and returns the
// accumulated text. It succeeds only once response.completed is seen.
func readResponseStream(r io.Reader, onDelta func(string)) (string, error) {
	var (
		full      strings.Builder
		completed bool
	)
	es := newEventScanner(r)
	for es.Next() {
		name, data := es.Event()
		if data == "" || data == "[DONE]" {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if ev.Type == "" {
			ev.Type = name
		}
		if strings.TrimSpace(ev.Refusal) != "" {
			return full.String(), fmt.Errorf("%w: %s", ErrRefused, ev.Refusal)
		}
		if len(ev.Error) > 0 && string(ev.Error) != "null" {
			return full.String(), fmt.Errorf("openai stream error: %s", ev.Error)
		}
		switch {
		case ev.Type == "response.failed" || ev.Type == "response.incomplete":
			return full.String(), fmt.Errorf("openai stream error: %s", ev.Type)
		case ev.Type == "response.completed":
			completed = true
		case strings.HasSuffix(ev.Type, "output_text.delta"):
			if d := strings.TrimRight(ev.Delta, "\u0000"); d != "" {
				full.WriteString(d)
				if onDelta != nil {
					onDelta(d)
				}
			}
		}
	}
	if err := es.Err(); err != nil {
		return full.String(), err
	}
	if !completed {
		return full.String(), ErrIncomplete
	}
	return full.String(), nil
}
