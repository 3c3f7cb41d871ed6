package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/examcast/internal/audio"
)

// WebRTCHandler answers SDP offers and streams the audition as Opus.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	config      webrtc.Configuration
	log         *zap.Logger

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]struct{}
}

// NewWebRTCHandler creates a handler. The audition server listens on
// loopback, so no ICE servers are configured.
func NewWebRTCHandler(b *Broadcaster, log *zap.Logger) *WebRTCHandler {
	return &WebRTCHandler{
		broadcaster: b,
		log:         log,
		peers:       make(map[*webrtc.PeerConnection]struct{}),
	}
}

func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(h.config)
	if err != nil {
		h.log.Error("create peer connection", zap.Error(err))
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}
	fail := func(status int, msg string, err error) {
		pc.Close()
		h.log.Warn(msg, zap.Error(err))
		http.Error(w, msg, status)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"narration",
		"examcast",
	)
	if err != nil {
		fail(http.StatusInternalServerError, "create audio track failed", err)
		return
	}
	if _, err := pc.AddTrack(track); err != nil {
		fail(http.StatusInternalServerError, "add track failed", err)
		return
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		fail(http.StatusBadRequest, "set remote description failed", err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		fail(http.StatusInternalServerError, "create answer failed", err)
		return
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		fail(http.StatusInternalServerError, "set local description failed", err)
		return
	}
	select {
	case <-gathered:
	case <-r.Context().Done():
		pc.Close()
		return
	}

	h.mu.Lock()
	h.peers[pc] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	h.log.Info("webrtc peer connected", zap.Int("peers", n))

	listener := h.broadcaster.Subscribe()
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.mu.Lock()
			_, known := h.peers[pc]
			delete(h.peers, pc)
			h.mu.Unlock()
			if known {
				h.broadcaster.Unsubscribe(listener)
				pc.Close()
				h.log.Info("webrtc peer disconnected", zap.String("state", s.String()))
			}
		}
	})
	go h.stream(listener, track)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) stream(listener *Listener, track *webrtc.TrackLocalStaticSample) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.log.Error("opus encoder", zap.Error(err))
		return
	}
	enc.SetBitrate(128000)
	packet := make([]byte, 4000)

	for {
		select {
		case <-listener.Done():
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, packet)
			if err != nil {
				h.log.Debug("opus encode", zap.Error(err))
				continue
			}
			if err := track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration}); err != nil {
				return
			}
		}
	}
}
