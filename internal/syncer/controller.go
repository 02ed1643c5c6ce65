// Package syncer keeps one local user's view of the labs they belong to in
// step with the shared store. A Controller owns at most one active session
// (the group on screen); the session holds the optimistic overlay, the relay
// bridge and the poll loop for that group.
package syncer

import (
	"context"
	"strings"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/models"
	"collab-lab/internal/presence"
	"collab-lab/internal/relay"
	"collab-lab/internal/repositories"
	"collab-lab/internal/store"
)

// Config holds the timing and quota settings shared by all controllers.
type Config struct {
	MessageTTL     time.Duration
	PollInterval   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	PlanLimits     models.PlanLimits
}

// Deps are the collaborators a controller works against. Transport and
// Publisher may be nil, in which case changes travel through the store only.
type Deps struct {
	Store     store.KeyedStore
	Blobs     store.BlobStore
	Users     repositories.UserRepository
	Groups    repositories.GroupRepository
	Messages  repositories.MessageRepository
	Presence  *presence.Tracker
	Transport relay.Transport
	Publisher *relay.Publisher
	Config    Config
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Config.MessageTTL <= 0 {
		d.Config.MessageTTL = 24 * time.Hour
	}
	if d.Config.PollInterval <= 0 {
		d.Config.PollInterval = 2 * time.Second
	}
	if d.Config.PlanLimits == nil {
		d.Config.PlanLimits = models.DefaultPlanLimits()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type session struct {
	groupID string
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	bridge  *relay.Bridge
	overlay *overlay
	done    chan struct{}
}

type Controller struct {
	deps   Deps
	userID string

	// switchMu serializes session changes.
	switchMu sync.Mutex

	mu         sync.Mutex
	session    *session
	generation uint64
	kinds      map[models.MessageKind]bool
	closed     bool

	subMu   sync.Mutex
	nextSub int
	subs    map[string]map[int]func(models.GroupView)

	// deliverMu keeps view deliveries in order.
	deliverMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]bool
	wake      chan struct{}

	stop        chan struct{}
	loopDone    chan struct{}
	unsubscribe func()
}

// NewController starts a controller for userID. Close releases it.
func NewController(deps Deps, userID string) *Controller {
	c := &Controller{
		deps:     deps.withDefaults(),
		userID:   userID,
		subs:     map[string]map[int]func(models.GroupView){},
		pending:  map[string]bool{},
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	if c.deps.Store != nil {
		c.unsubscribe = c.deps.Store.Subscribe(c.onStoreChange)
	}
	go c.notifyLoop()
	return c
}

// UserID returns the local user this controller acts for.
func (c *Controller) UserID() string { return c.userID }

// ActiveGroup returns the group of the current session, if any.
func (c *Controller) ActiveGroup() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", false
	}
	return c.session.groupID, true
}

// Activate makes groupID the active group. The previous session is fully
// torn down before the new one starts.
func (c *Controller) Activate(ctx context.Context, groupID string) error {
	group, err := c.deps.Groups.Get(ctx, groupID)
	if err != nil {
		return classify(err)
	}
	if !group.IsMember(c.userID) {
		return ErrNotMember
	}

	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.session
	c.session = nil
	c.mu.Unlock()
	c.teardown(old)

	c.mu.Lock()
	c.generation++
	s := &session{
		groupID: groupID,
		gen:     c.generation,
		overlay: newOverlay(),
		done:    make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	c.session = s
	c.mu.Unlock()

	if c.deps.Transport != nil {
		s.bridge = relay.NewBridge(relay.BridgeConfig{
			Transport:      c.deps.Transport,
			Messages:       c.deps.Messages,
			Groups:         c.deps.Groups,
			GroupID:        groupID,
			LocalUserID:    c.userID,
			MessageTTL:     c.deps.Config.MessageTTL,
			BackoffInitial: c.deps.Config.BackoffInitial,
			BackoffMax:     c.deps.Config.BackoffMax,
			Now:            c.deps.Now,
			OnApplied: func(models.Envelope) {
				if c.isCurrent(s.gen) {
					c.markChanged(groupID)
				}
			},
		})
		s.bridge.Start()
	}
	go c.pollLoop(s)

	jww.INFO.Printf("session activated user=%s group=%s gen=%d", c.userID, groupID, s.gen)
	c.refresh(groupID)
	return nil
}

// Deactivate ends the active session, if any.
func (c *Controller) Deactivate() {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	old := c.session
	c.session = nil
	c.generation++
	c.mu.Unlock()
	c.teardown(old)
}

func (c *Controller) teardown(s *session) {
	if s == nil {
		return
	}
	s.cancel()
	if s.bridge != nil {
		s.bridge.Stop()
	}
	<-s.done
	s.overlay.clear()
	jww.INFO.Printf("session closed user=%s group=%s gen=%d", c.userID, s.groupID, s.gen)
}

// Close ends the session and stops all background work.
func (c *Controller) Close() {
	c.Deactivate()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	close(c.stop)
	<-c.loopDone
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.gen == gen
}

// current returns the session when it belongs to groupID.
func (c *Controller) current(groupID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.groupID == groupID {
		return c.session
	}
	return nil
}

func (c *Controller) pollLoop(s *session) {
	defer close(s.done)
	ticker := time.NewTicker(c.deps.Config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if c.isCurrent(s.gen) {
				c.markChanged(s.groupID)
			}
		}
	}
}

// SetKindFilter restricts views to the given kinds. No kinds shows all.
func (c *Controller) SetKindFilter(kinds ...models.MessageKind) {
	c.mu.Lock()
	if len(kinds) == 0 {
		c.kinds = nil
	} else {
		c.kinds = map[models.MessageKind]bool{}
		for _, k := range kinds {
			c.kinds[k] = true
		}
	}
	c.mu.Unlock()
	c.markAllWatched()
}

func (c *Controller) kindFilter() map[models.MessageKind]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kinds
}

// SubscribeToGroup delivers a fresh view of groupID right away and another
// one after every reconciliation of that group. Listener panics are
// recovered and logged.
func (c *Controller) SubscribeToGroup(groupID string, listener func(models.GroupView)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.subs[groupID] == nil {
		c.subs[groupID] = map[int]func(models.GroupView){}
	}
	c.subs[groupID][id] = listener
	c.subMu.Unlock()

	c.deliverMu.Lock()
	if view, err := c.View(context.Background(), groupID); err == nil {
		c.call(groupID, listener, view)
	} else {
		jww.DEBUG.Printf("initial view failed user=%s group=%s: %v", c.userID, groupID, err)
	}
	c.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs[groupID], id)
			if len(c.subs[groupID]) == 0 {
				delete(c.subs, groupID)
			}
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) listeners(groupID string) []func(models.GroupView) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	out := make([]func(models.GroupView), 0, len(c.subs[groupID]))
	for _, l := range c.subs[groupID] {
		out = append(out, l)
	}
	return out
}

func (c *Controller) watched(groupID string) bool {
	if c.current(groupID) != nil {
		return true
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs[groupID]) > 0
}

func (c *Controller) call(groupID string, listener func(models.GroupView), view models.GroupView) {
	defer func() {
		if r := recover(); r != nil {
			jww.ERROR.Printf("group view listener panicked user=%s group=%s: %v", c.userID, groupID, r)
		}
	}()
	listener(view)
}

func (c *Controller) onStoreChange(key string) {
	if groupID, ok := store.GroupOfKey(key); ok {
		c.markChanged(groupID)
		return
	}
	if strings.HasPrefix(key, store.UserPrefix) {
		// friends, requests and member presence live on user records
		c.markAllWatched()
	}
}

func (c *Controller) markAllWatched() {
	groups := map[string]bool{}
	if g, ok := c.ActiveGroup(); ok {
		groups[g] = true
	}
	c.subMu.Lock()
	for g := range c.subs {
		groups[g] = true
	}
	c.subMu.Unlock()
	for g := range groups {
		c.markChanged(g)
	}
}

// markChanged queues a reconciliation of groupID on the notify loop.
func (c *Controller) markChanged(groupID string) {
	c.pendingMu.Lock()
	c.pending[groupID] = true
	c.pendingMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) notifyLoop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.stop:
			return
		case <-c.wake:
		}

		c.pendingMu.Lock()
		groups := c.pending
		c.pending = map[string]bool{}
		c.pendingMu.Unlock()

		for groupID := range groups {
			if c.watched(groupID) {
				c.refresh(groupID)
			}
		}
	}
}

// refresh reconciles groupID and hands the result to its subscribers.
func (c *Controller) refresh(groupID string) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	view, err := c.View(context.Background(), groupID)
	if err != nil {
		jww.DEBUG.Printf("reconcile skipped user=%s group=%s: %v", c.userID, groupID, err)
		return
	}
	for _, l := range c.listeners(groupID) {
		c.call(groupID, l, view)
	}
}
