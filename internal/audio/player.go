package audio

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Player plays a decoded master track as PCM frames at real-time rate, for
// auditioning a finished item.
type Player struct {
	frameCh chan []int16
	seekCh  chan time.Duration
	log     *zap.Logger

	mu       sync.RWMutex
	position time.Duration
	duration time.Duration
}

// NewPlayer creates a player.
func NewPlayer(log *zap.Logger) *Player {
	return &Player{
		frameCh: make(chan []int16, 100),
		seekCh:  make(chan time.Duration, 1),
		log:     log,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Player) Frames() <-chan []int16 {
	return p.frameCh
}

// Seek moves playback to offset. A pending seek is replaced.
func (p *Player) Seek(offset time.Duration) {
	select {
	case <-p.seekCh:
	default:
	}
	select {
	case p.seekCh <- offset:
	default:
	}
}

// Status returns the current playback position and track length.
func (p *Player) Status() (position, duration time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position, p.duration
}

// Run plays samples until the end (or forever when loop is set). Blocks
// until done or ctx is cancelled, then closes Frames.
func (p *Player) Run(ctx context.Context, samples []int16, loop bool) {
	defer close(p.frameCh)

	totalFrames := (len(samples) + FrameSamples - 1) / FrameSamples
	p.mu.Lock()
	p.duration = time.Duration(len(samples)/Channels) * time.Second / SampleRate
	p.mu.Unlock()

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		for i := 0; i < totalFrames; i++ {
			select {
			case off := <-p.seekCh:
				i = SampleAt(off) / FrameSize
				if i < 0 || i >= totalFrames {
					i = 0
				}
				p.log.Debug("seek", zap.Duration("offset", off))
			default:
			}

			if !p.sendFrame(ctx, ticker, frameAt(samples, i)) {
				return
			}
			p.updatePosition(i + 1)
		}
		if !loop {
			return
		}
	}
}

// frameAt returns frame i, padding the final partial frame with silence.
func frameAt(samples []int16, i int) []int16 {
	start := i * FrameSamples
	end := start + FrameSamples
	if end <= len(samples) {
		return samples[start:end]
	}
	return Fit(samples[start:], FrameSamples)
}

// sendFrame waits for the ticker then sends a frame. Returns false on cancel.
func (p *Player) sendFrame(ctx context.Context, ticker *time.Ticker, frame []int16) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
	}

	select {
	case p.frameCh <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Player) updatePosition(frames int) {
	p.mu.Lock()
	p.position = time.Duration(frames) * FrameDuration
	if p.position > p.duration {
		p.position = p.duration
	}
	p.mu.Unlock()
}
