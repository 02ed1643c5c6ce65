package store

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// Notifier fans change notifications out to registered listeners. Backends
// embed it to implement Subscribe.
type Notifier struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

// Subscribe registers listener and returns a function removing it again.
func (n *Notifier) Subscribe(listener Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]Listener)
	}
	id := n.next
	n.next++
	n.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Notify calls every listener with key. A panicking listener is logged and
// does not prevent delivery to the others.
func (n *Notifier) Notify(key string) {
	n.mu.RLock()
	listeners := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		listeners = append(listeners, l)
	}
	n.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					jww.ERROR.Printf("store listener panicked key=%s: %v", key, r)
				}
			}()
			l(key)
		}()
	}
}
