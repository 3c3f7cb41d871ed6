package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/content"
	"github.com/satindergrewal/examcast/internal/timeline"
	"github.com/satindergrewal/examcast/internal/web"
)

// ErrNoClient means no page is connected to receive a state.
var ErrNoClient = errors.New("no page connected")

// Payload is what the page needs to render any state.
type Payload struct {
	Document *content.Document `json:"document"`
	Sequence *timeline.Sequence `json:"sequence"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
}

type stateMessage struct {
	Seq   uint64               `json:"seq"`
	State timeline.VisualState `json:"state"`
}

type ackMessage struct {
	Ack uint64 `json:"ack"`
}

type client struct {
	conn *websocket.Conn
	send chan stateMessage
	done chan struct{}
}

// Server serves the exam page and pushes visual states to it over a
// websocket. Show waits until a page acknowledges the state as rendered.
type Server struct {
	payload  Payload
	router   *mux.Router
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu        sync.Mutex
	clients   map[*client]struct{}
	seq       uint64
	acked     uint64
	ackCh     chan struct{} // closed and replaced on every ack
	connected chan struct{}
	once      sync.Once

	httpServer *http.Server
	url        string
}

// New creates a surface server for one recording.
func New(payload Payload, log *zap.Logger) *Server {
	s := &Server{
		payload:   payload,
		router:    mux.NewRouter(),
		log:       log,
		clients:   make(map[*client]struct{}),
		ackCh:     make(chan struct{}),
		connected: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.router.HandleFunc("/", s.handlePage).Methods("GET")
	s.router.HandleFunc("/api/document", s.handleDocument).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWS)
	return s
}

// Handler exposes the routes, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Listen starts serving on addr (use "127.0.0.1:0" for an ephemeral port)
// and returns the page URL.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen surface: %w", err)
	}
	s.httpServer = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.url = "http://" + ln.Addr().String() + "/"
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("surface server", zap.Error(err))
		}
	}()
	s.log.Debug("surface listening", zap.String("url", s.url))
	return s.url, nil
}

// URL is the page address once Listen has been called.
func (s *Server) URL() string { return s.url }

// Close disconnects pages and stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// WaitForClient blocks until a page has connected.
func (s *Server) WaitForClient(ctx context.Context) error {
	select {
	case <-s.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients is the number of connected pages.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Show sends st to every page and waits for one of them to acknowledge it.
func (s *Server) Show(ctx context.Context, st timeline.VisualState) error {
	s.mu.Lock()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return ErrNoClient
	}
	s.seq++
	msg := stateMessage{Seq: s.seq, State: st}
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.log.Warn("page send buffer full", zap.Uint64("seq", msg.Seq))
		}
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		acked, wait := s.acked, s.ackCh
		s.mu.Unlock()
		if acked >= msg.Seq {
			return nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return fmt.Errorf("state %d (%s) not acknowledged: %w", msg.Seq, st.Mode, ctx.Err())
		}
	}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(web.SurfaceHTML)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan stateMessage, 64), done: make(chan struct{})}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.once.Do(func() { close(s.connected) })
	s.log.Info("page connected", zap.Int("pages", n))

	go s.writeLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	close(c.done)
	conn.Close()
	s.log.Info("page disconnected")
}

// writeLoop is the connection's only writer.
func (s *Server) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				s.log.Warn("page write", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) readLoop(c *client) {
	for {
		var ack ackMessage
		if err := c.conn.ReadJSON(&ack); err != nil {
			return
		}
		s.mu.Lock()
		if ack.Ack > s.acked {
			s.acked = ack.Ack
			close(s.ackCh)
			s.ackCh = make(chan struct{})
		}
		s.mu.Unlock()
	}
}
