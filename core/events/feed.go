package events

import (
	"sync"
	"sync/atomic"

	"xfarm/core/types"
)

const defaultFeedBuffer = 64

// Feed broadcasts committed events to live subscribers. A subscriber that
// falls behind by more than its buffer misses events instead of stalling the
// engine; Dropped reports how many were lost.
type Feed struct {
	mu      sync.RWMutex
	subs    map[uint64]chan types.Event
	next    uint64
	closed  bool
	dropped atomic.Uint64
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]chan types.Event)}
}

// Emit implements Emitter. Events without a generic form are skipped.
func (f *Feed) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	typed, ok := evt.(Typed)
	if !ok {
		return
	}
	rendered := typed.Event()
	if rendered == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- *rendered:
		default:
			f.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber with the given buffer size. The cancel
// function unregisters it and closes the channel; it is safe to call twice.
func (f *Feed) Subscribe(buffer int) (<-chan types.Event, func()) {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	ch := make(chan types.Event, buffer)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped returns the number of deliveries skipped because a subscriber's
// buffer was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Close ends every subscription. Later subscribers receive a closed channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
