package syncer

import (
	"sync"
	"time"

	"collab-lab/internal/models"
	"collab-lab/internal/observability"
)

// overlay holds messages sent from this controller that the shared store
// has not shown back yet.
type overlay struct {
	mu   sync.Mutex
	msgs map[string]models.Message
}

func newOverlay() *overlay {
	return &overlay{msgs: map[string]models.Message{}}
}

func (o *overlay) add(m models.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.msgs[m.ID]; !ok {
		observability.AddOverlay(1)
	}
	o.msgs[m.ID] = m
}

func (o *overlay) remove(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.msgs[id]; ok {
		delete(o.msgs, id)
		observability.AddOverlay(-1)
	}
}

// reconcile drops entries that reached the store or expired and returns the
// rest in display order.
func (o *overlay) reconcile(confirmed map[string]bool, now time.Time) []models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	var pending []models.Message
	for id, m := range o.msgs {
		if confirmed[id] || m.Expired(now) {
			delete(o.msgs, id)
			observability.AddOverlay(-1)
			continue
		}
		pending = append(pending, m)
	}
	models.SortMessages(pending)
	return pending
}

func (o *overlay) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	observability.AddOverlay(-len(o.msgs))
	o.msgs = map[string]models.Message{}
}

func (o *overlay) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}
