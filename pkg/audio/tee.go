package audio

import "sync"

// Tee fans captured frames out to multiple bounded subscriber channels with a
// drop-oldest policy: when a subscriber falls behind, its oldest buffered
// frame is discarded so the newest audio always fits. This bounds latency at
// the cost of occasionally losing a frame, which the wake detector and VAD
// tolerate by design.
//
// Publish is intended to be called from a single producer goroutine;
// Subscribe and Dropped are safe to call concurrently with Publish.
type Tee struct {
	mu       sync.Mutex
	capacity int
	subs     []chan Frame
	dropped  uint64
	closed   bool
}

// NewTee creates a Tee whose subscriber channels buffer up to capacity
// frames. Capacity must be at least 1.
func NewTee(capacity int) *Tee {
	if capacity < 1 {
		capacity = 1
	}
	return &Tee{capacity: capacity}
}

// Subscribe registers a new consumer and returns its frame channel. The
// channel is closed when the Tee is closed.
func (t *Tee) Subscribe() <-chan Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan Frame, t.capacity)
	if t.closed {
		close(ch)
		return ch
	}
	t.subs = append(t.subs, ch)
	return ch
}

// Publish delivers frame to every subscriber. A full subscriber has its
// oldest frame evicted first; if the channel is still full after eviction
// (a racing reader refilled it), the new frame is dropped instead.
func (t *Tee) Publish(frame Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- frame:
			continue
		default:
		}
		select {
		case <-ch:
			t.dropped++
		default:
		}
		select {
		case ch <- frame:
		default:
			t.dropped++
		}
	}
}

// Dropped reports how many frames have been discarded across all subscribers.
func (t *Tee) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (t *Tee) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, ch := range t.subs {
		close(ch)
	}
	t.subs = nil
}
