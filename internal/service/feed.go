package service

import "sync"

// ChangeFeed fans change notifications out to subscribers. Notifications
// coalesce: a slow subscriber sees at most one pending signal.
type ChangeFeed struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{subs: make(map[chan struct{}]struct{})}
}

// Changed implements Notifier. It never blocks.
func (f *ChangeFeed) Changed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a listener. The returned func unregisters it and
// closes the channel; it is safe to call more than once.
func (f *ChangeFeed) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}
