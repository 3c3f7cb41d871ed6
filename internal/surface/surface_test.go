package surface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/content"
	"github.com/satindergrewal/examcast/internal/timeline"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Payload{
		Document: &content.Document{Info: content.ExamInfo{Title: "Hören"}},
		Sequence: &timeline.Sequence{},
		Width:    1280,
		Height:   720,
	}, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

// page dials the websocket and acknowledges states unless ack is false.
func page(t *testing.T, ts *httptest.Server, ack bool) (*websocket.Conn, <-chan stateMessage) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	got := make(chan stateMessage, 16)
	go func() {
		for {
			var msg stateMessage
			if err := conn.ReadJSON(&msg); err != nil {
				close(got)
				return
			}
			got <- msg
			if ack {
				conn.WriteJSON(ackMessage{Ack: msg.Seq})
			}
		}
	}()
	return conn, got
}

// --- HTTP ---

func TestPageAndDocument(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	resp, err = http.Get(ts.URL + "/api/document")
	if err != nil {
		t.Fatalf("GET /api/document: %v", err)
	}
	defer resp.Body.Close()
	var p struct {
		Document struct {
			Info struct {
				Title string `json:"title"`
			} `json:"exam_info"`
		} `json:"document"`
		Width int `json:"width"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Document.Info.Title != "Hören" || p.Width != 1280 {
		t.Errorf("payload = %+v", p)
	}
}

// --- Show ---

func TestShowWithoutPage(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.Show(context.Background(), timeline.Idle); !errors.Is(err, ErrNoClient) {
		t.Errorf("err = %v, want ErrNoClient", err)
	}
}

func TestShowAcknowledged(t *testing.T) {
	s, ts := newTestServer(t)
	_, got := page(t, ts, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitForClient(ctx); err != nil {
		t.Fatalf("WaitForClient: %v", err)
	}

	states := []timeline.VisualState{
		{Mode: timeline.ModeIntro, Index: 0, SegmentID: "intro"},
		{Mode: timeline.ModeReading, Index: 1, Number: 1, SegmentID: "text_1"},
	}
	for _, st := range states {
		if err := s.Show(ctx, st); err != nil {
			t.Fatalf("Show(%s): %v", st.SegmentID, err)
		}
	}
	for i, want := range states {
		msg := <-got
		if msg.Seq != uint64(i+1) || msg.State.SegmentID != want.SegmentID {
			t.Errorf("message %d = %+v, want seq %d %s", i, msg, i+1, want.SegmentID)
		}
	}
}

func TestShowTimesOutWithoutAck(t *testing.T) {
	s, ts := newTestServer(t)
	page(t, ts, false)
	if err := s.WaitForClient(context.Background()); err != nil {
		t.Fatal(err)
	}
	// the page may still be registering
	deadline := time.Now().Add(time.Second)
	for s.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Show(ctx, timeline.Idle)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestWaitForClientCancelled(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitForClient(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestListenServesPage(t *testing.T) {
	s := New(Payload{Document: &content.Document{}, Sequence: &timeline.Sequence{}}, zap.NewNop())
	url, err := s.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer s.Close()
	if s.URL() != url {
		t.Errorf("URL() = %q, want %q", s.URL(), url)
	}
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
