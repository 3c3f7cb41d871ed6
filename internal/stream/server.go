package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/timeline"
	"github.com/satindergrewal/examcast/internal/web"
)

// Player is the playback position source of an audition.
type Player interface {
	Status() (position, duration time.Duration)
	Seek(offset time.Duration)
}

// Status is the audition state reported to the page.
type Status struct {
	State           timeline.VisualState `json:"state"`
	Position        float64              `json:"position"`
	Duration        float64              `json:"duration"`
	HTTPListeners   int                  `json:"http_listeners"`
	WebRTCListeners int                  `json:"webrtc_listeners"`
}

// Server serves an audition: the page, the audio streams, and the visual
// state the recording shows at the current playback position.
type Server struct {
	seq    *timeline.Sequence
	player Player
	mp3    *MP3Handler
	rtc    *WebRTCHandler
	router *mux.Router
	log    *zap.Logger
}

// NewServer wires the routes for one sequence.
func NewServer(seq *timeline.Sequence, player Player, b *Broadcaster, log *zap.Logger) *Server {
	s := &Server{
		seq:    seq,
		player: player,
		mp3:    NewMP3Handler(b, log),
		rtc:    NewWebRTCHandler(b, log),
		router: mux.NewRouter(),
		log:    log,
	}
	s.router.HandleFunc("/", s.handlePage).Methods("GET")
	s.router.Handle("/stream", s.mp3).Methods("GET")
	s.router.Handle("/offer", s.rtc).Methods("POST")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/sequence", s.handleSequence).Methods("GET")
	s.router.HandleFunc("/api/seek", s.handleSeek).Methods("POST")
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Status reports the playback position and the matching visual state.
func (s *Server) Status() Status {
	pos, dur := s.player.Status()
	return Status{
		State:           timeline.StateAt(s.seq, pos),
		Position:        timeline.Seconds(pos),
		Duration:        timeline.Seconds(dur),
		HTTPListeners:   s.mp3.Listeners(),
		WebRTCListeners: s.rtc.PeerCount(),
	}
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("audition listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(web.AuditionHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Status())
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	data, err := timeline.Marshal(s.seq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleSeek moves playback to ?t=<seconds>.
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	sec, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil || sec < 0 {
		http.Error(w, "t must be a non-negative number of seconds", http.StatusBadRequest)
		return
	}
	s.player.Seek(timeline.FromSeconds(sec))
	w.WriteHeader(http.StatusNoContent)
}
