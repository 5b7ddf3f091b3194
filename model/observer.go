package model

import "sync"

// Origin tags a mutation with where it came from. Observers use it to tell
// local edits apart from values the device reported.
type Origin int

const (
	OriginLocal Origin = iota
	OriginDevice
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginDevice:
		return "device"
	default:
		return "unknown"
	}
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// observers is a subscriber list notified in subscription order.
type observers[T any] struct {
	mu   sync.Mutex
	next int
	subs []subscriber[T]
}

func (o *observers[T]) subscribe(fn func(T)) func() {
	o.mu.Lock()
	id := o.next
	o.next++
	o.subs = append(o.subs, subscriber[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (o *observers[T]) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// notify must be called without holding the owner's state lock.
func (o *observers[T]) notify(ev T) {
	o.mu.Lock()
	fns := make([]func(T), len(o.subs))
	for i, s := range o.subs {
		fns[i] = s.fn
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
