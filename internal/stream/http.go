package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/audio"
)

// MP3Handler streams the audition as chunked MP3. Every connection gets its
// own ffmpeg encoder fed from a broadcaster subscription.
type MP3Handler struct {
	broadcaster *Broadcaster
	active      atomic.Int64
	log         *zap.Logger
}

func NewMP3Handler(b *Broadcaster, log *zap.Logger) *MP3Handler {
	return &MP3Handler{broadcaster: b, log: log}
}

// Listeners is the number of connected HTTP clients.
func (h *MP3Handler) Listeners() int { return int(h.active.Load()) }

func mp3Args() []string {
	return []string{
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *MP3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", mp3Args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.Error("mp3 stdin pipe", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.Error("mp3 stdout pipe", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		h.log.Error("start mp3 encoder", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)
	h.active.Add(1)
	defer h.active.Add(-1)
	h.log.Info("http listener connected", zap.String("remote", r.RemoteAddr), zap.Int("listeners", h.broadcaster.ListenerCount()))
	defer h.log.Info("http listener disconnected", zap.String("remote", r.RemoteAddr))

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame := <-listener.C:
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.log.Warn("mp3 encoder read", zap.Error(err))
			}
			return
		}
	}
}
