package upstream

import (
	"sync"
	"time"

	"github.com/dsbroker/broker/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

// PendingAction is a deferred mutation requested against a live Poll. A
// queue of these, drained at a safe point in the event loop, replaces a
// single shared "pending action" slot design: with only one slot, a second
// schedule before the first drained would silently overwrite and orphan
// it. Per-poll queuing with last-writer-wins per name avoids that.
type PendingAction int

const (
	PendingNone PendingAction = iota
	PendingStop
	PendingReset
	PendingDelete
)

func (a PendingAction) String() string {
	switch a {
	case PendingStop:
		return "stop"
	case PendingReset:
		return "reset"
	case PendingDelete:
		return "delete"
	default:
		return "none"
	}
}

// Poll is the runtime object paired 1:1 with a live Entry: the thing that
// actually owns the (out-of-scope) socket/session to the peer broker, the
// ping timer, and the pending-action state a listener callback may set.
// Destruction order is always poll -> timer -> entry: the poll clears
// Entry.Poll itself during teardown, before the entry node tree may be
// freed.
type Poll struct {
	Name  string
	Entry *Entry

	pendingAction PendingAction
	stopPing      func() error
}

// PingHandler is invoked by the 10s-repeating ping timer. The broker's own
// link-ping logic, connection handshake and socket I/O are out of scope;
// callers supply whatever stands in for it.
type PingHandler func(p *Poll)

// genericLinkPing is used when an entry's poll is started without an
// explicit handler.
func genericLinkPing(p *Poll) {
	log.Debugf("upstream %q: link ping", p.Name)
}

// PollController owns the ping scheduler and the pending-action queue
// shared by every live Poll. It decouples listener callbacks, which run
// while a node value write is still on the stack, from destructive actions
// that must not free state the current call stack references.
type PollController struct {
	scheduler gocron.Scheduler

	mu     sync.Mutex
	queue  []*Poll
	queued map[string]bool
}

func NewPollController() (*PollController, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &PollController{
		scheduler: s,
		queued:    make(map[string]bool),
	}, nil
}

// Start begins running scheduled jobs (ping timers and, if scheduleDrain
// was called, the pending-action drain tick).
func (c *PollController) Start() {
	c.scheduler.Start()
}

// scheduleDrain registers a repeating job that drains the pending-action
// queue every interval, standing in for "the safe point between I/O
// dispatches" a real event loop would drain at: with no network transport
// in scope, a short timer is the closest equivalent.
func (c *PollController) scheduleDrain(interval time.Duration, apply func(*Poll)) error {
	_, err := c.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { c.drain(apply) }),
	)
	return err
}

// Shutdown stops the scheduler and waits for in-flight jobs to finish.
func (c *PollController) Shutdown() error {
	return c.scheduler.Shutdown()
}

// startPing attaches a 10s-repeating timer to p, first firing 1s from now.
func (c *PollController) startPing(p *Poll, handler PingHandler) error {
	if handler == nil {
		handler = genericLinkPing
	}
	job, err := c.scheduler.NewJob(
		gocron.DurationJob(10*time.Second),
		gocron.NewTask(func() { handler(p) }),
		gocron.WithStartAt(gocron.WithStartDateTime(time.Now().Add(1*time.Second))),
	)
	if err != nil {
		return err
	}
	p.stopPing = func() error { return c.scheduler.RemoveJob(job.ID()) }
	return nil
}

// schedule sets p's pending action (last-writer-wins) and enqueues p for
// the next drain if it is not already queued.
func (c *PollController) schedule(p *Poll, action PendingAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.pendingAction = action
	if !c.queued[p.Name] {
		c.queued[p.Name] = true
		c.queue = append(c.queue, p)
	}
}

// executeOrSchedule implements the immediate-execution carve-out: when the
// invoking link is itself a different live upstream than the target poll,
// the deferral guard doesn't apply (it exists only to protect the link
// driving the current event-loop turn), so the action runs immediately.
// callerName == "" means the caller is not itself an upstream link (e.g. a
// local admin action or a registry load), which is also safe to defer
// normally.
func (c *PollController) executeOrSchedule(callerName string, p *Poll, action PendingAction, apply func(*Poll)) {
	if callerName != "" && callerName != p.Name {
		p.pendingAction = action
		apply(p)
		return
	}
	c.schedule(p, action)
}

// drain runs apply for every poll queued since the last drain, in
// schedule order, then clears the queue.
func (c *PollController) drain(apply func(*Poll)) {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.queued = make(map[string]bool)
	c.mu.Unlock()

	for _, p := range queue {
		apply(p)
	}
}
