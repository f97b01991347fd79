package realtime

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/vidrag-backend/internal/domain/video"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := ProfileChannel(uuid.New())

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	for i := 1; i <= 2; i++ {
		hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventVideoStatusChanged, Data: map[string]any{"seq": i}})
	}
	first := recvMessage(t, clientA.Outbound, time.Second)
	second := recvMessage(t, clientA.Outbound, time.Second)
	if first.Data.(map[string]any)["seq"] != 1 || second.Data.(map[string]any)["seq"] != 2 {
		t.Fatalf("messages out of order: %v %v", first.Data, second.Data)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers after close: want=0 got=%d", n)
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventVideoStatusChanged})
	recvMessage(t, clientB.Outbound, time.Second)
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "c")
	for i := 0; i < outboundBuffer+5; i++ {
		hub.Broadcast(SSEMessage{Channel: "c", Event: SSEEventVideoStatusChanged})
	}
	if got := len(client.Outbound); got != outboundBuffer {
		t.Fatalf("buffered: want=%d got=%d", outboundBuffer, got)
	}
}

func TestSSEHubServeHTTPWritesEvents(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "c")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeHTTP(w, r, client)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}

	hub.Broadcast(SSEMessage{Channel: "c", Event: SSEEventVideoStatusChanged, Data: map[string]any{"status": "READY"}})

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(line) != "event: VideoStatusChanged" {
		t.Fatalf("event line: %q", line)
	}
	line, _ = br.ReadString('\n')
	if !strings.Contains(line, `"status":"READY"`) {
		t.Fatalf("data line: %q", line)
	}
}

type stubPublisher struct {
	err  error
	msgs []SSEMessage
}

func (p *stubPublisher) Publish(_ context.Context, msg SSEMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestStatusNotifier(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	profile := uuid.New()
	client := hub.NewSSEClient(profile)
	hub.AddChannel(client, ProfileChannel(profile))
	v := &video.Video{ID: uuid.New(), ProfileID: profile, Status: video.StatusReady}

	pub := &stubPublisher{}
	NewStatusNotifier(logger.Nop(), hub, pub).VideoStatusChanged(context.Background(), v)
	if len(pub.msgs) != 1 || len(client.Outbound) != 0 {
		t.Fatalf("published message must not also be broadcast locally")
	}
	if pub.msgs[0].Data.(VideoStatus).Status != video.StatusReady {
		t.Fatalf("payload status: %v", pub.msgs[0].Data)
	}

	pub.err = errors.New("redis down")
	NewStatusNotifier(logger.Nop(), hub, pub).VideoStatusChanged(context.Background(), v)
	msg := recvMessage(t, client.Outbound, time.Second)
	if msg.Channel != ProfileChannel(profile) {
		t.Fatalf("channel: %s", msg.Channel)
	}

	NewStatusNotifier(logger.Nop(), hub, nil).VideoStatusChanged(context.Background(), v)
	recvMessage(t, client.Outbound, time.Second)
}
