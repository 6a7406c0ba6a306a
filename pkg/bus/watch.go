package bus

import (
	"context"
	"sync"
)

const defaultWatchBuffer = 32

// Watch returns a buffered channel receiving every event published after the
// call, regardless of type. Events are dropped for watchers whose buffer is
// full, so a slow consumer never stalls a publisher. The returned cancel
// function is safe to call more than once; the channel also closes when ctx
// is done or the bus is closed.
func (b *Bus) Watch(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultWatchBuffer
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}

	id := b.nextWatcherID
	b.nextWatcherID++
	b.watchers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if watcher, ok := b.watchers[id]; ok {
				delete(b.watchers, id)
				close(watcher)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		cancel()
	}()

	return ch, cancel
}
