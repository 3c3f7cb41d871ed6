package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// listenerBuffer holds about three seconds of 20ms frames.
const listenerBuffer = 150

// Broadcaster fans the audition player's frames out to every listener.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	dropped   atomic.Int64
	log       *zap.Logger
}

// Listener receives frames until it is unsubscribed.
type Listener struct {
	C    chan []int16
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster(log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
		log:       log,
	}
}

func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Dropped is the number of frames not delivered to slow listeners.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

// Run forwards frames from source until it closes or ctx is done. A listener
// whose buffer is full misses the frame; playback never waits for it.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	defer func() {
		if n := b.dropped.Load(); n > 0 {
			b.log.Debug("broadcast stopped", zap.Int64("dropped_frames", n))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					b.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
