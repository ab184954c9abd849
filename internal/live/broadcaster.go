// Package live fans out capture summaries to viewers in real time.
//
// The broadcaster sits between the capture path and any number of
// viewers (SSE streams, the TUI). It must never slow capture down: a
// publish is a non-blocking send to each subscriber's bounded buffer,
// and a viewer that falls behind loses summaries rather than applying
// backpressure upstream.
package live

import "sync"

// defaultBufferSize is the per-subscriber channel buffer. Big enough to
// ride out a viewer's brief stall, small enough that a dead viewer
// holds a bounded amount of memory until it unsubscribes.
const defaultBufferSize = 64

// Summary is the lightweight per-call event pushed to viewers. It
// carries sizes and timing, never payload bytes, so an unscrubbed body
// cannot leak through the live channel. Seq is assigned by Publish and
// is strictly increasing, so a viewer can tell dropped summaries from
// a quiet capture.
type Summary struct {
	Seq          int    `json:"seq"`
	Timestamp    uint64 `json:"timestamp"`
	RequestSize  int    `json:"request_size"`
	ResponseSize int    `json:"response_size"`
	LatencyMS    uint64 `json:"latency_ms"`
}

// Broadcaster delivers summaries to all current subscribers. The zero
// value is not usable; call NewBroadcaster.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan Summary
	nextID  int
	seq     int
	bufSize int
	dropped uint64
}

// NewBroadcaster returns a broadcaster whose subscribers each get a
// buffer of bufSize summaries. bufSize <= 0 selects the default.
func NewBroadcaster(bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Broadcaster{
		subs:    make(map[int]chan Summary),
		bufSize: bufSize,
	}
}

// Subscribe registers a new viewer and returns its channel plus a
// cancel function. Cancel is idempotent and closes the channel, so a
// ranging viewer terminates cleanly.
func (b *Broadcaster) Subscribe() (<-chan Summary, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Summary, b.bufSize)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish stamps s with the next sequence number and delivers it to
// every subscriber whose buffer has room, dropping it for the rest. It
// never blocks, whatever the viewers are doing.
func (b *Broadcaster) Publish(s Summary) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s.Seq = b.seq
	b.seq++

	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			b.dropped++
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the total number of per-subscriber drops so far.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
