// Package upstream implements the federation lifecycle: the configuration
// subtree for each upstream peer (Entry), the poll controller that
// decouples listener callbacks from destructive teardown (PollController),
// and the on-disk registry of entries (Registry).
package upstream

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dsbroker/broker/internal/metrics"
	"github.com/dsbroker/broker/internal/node"
	"github.com/dsbroker/broker/pkg/log"
)

// Config configures a Registry.
type Config struct {
	// StorageRoot is the broker's storage root; entries live under
	// StorageRoot/upstream/<escaped-name>.
	StorageRoot string
	// SysParent is the node under which each entry's config subtree (its
	// six properties plus "delete") is added, i.e. the broker's
	// "sys/upstream" node.
	SysParent *node.Node
	// DataParent is the node under which each entry's live downstream
	// node is added, i.e. the broker's "/upstream" node.
	DataParent *node.Node
	// PingHandler, if set, supplies a per-entry ping callback; otherwise
	// genericLinkPing is used.
	PingHandler func(name string) PingHandler
	Hooks       *Hooks
	// Metrics, if set, receives the count of entries with a running poll
	// every time it changes. A nil *metrics.Collector is safe to pass.
	Metrics *metrics.Collector
}

// Registry enumerates, loads, saves and deletes upstream entries, and
// materializes them into the broker tree at startup.
type Registry struct {
	mu sync.Mutex

	upstreamDir string
	sysParent   *node.Node
	dataParent  *node.Node
	pingHandler func(name string) PingHandler
	hooks       *Hooks
	metrics     *metrics.Collector

	entries    map[string]*Entry
	controller *PollController
}

// New creates a Registry. It does not touch the filesystem or the node
// tree; call EnsureStorage and Load to do that.
func New(cfg Config) (*Registry, error) {
	ctrl, err := NewPollController()
	if err != nil {
		return nil, fmt.Errorf("upstream: creating poll controller: %w", err)
	}
	return &Registry{
		upstreamDir: filepath.Join(cfg.StorageRoot, "upstream"),
		sysParent:   cfg.SysParent,
		dataParent:  cfg.DataParent,
		pingHandler: cfg.PingHandler,
		hooks:       cfg.Hooks,
		metrics:     cfg.Metrics,
		entries:     make(map[string]*Entry),
		controller:  ctrl,
	}, nil
}

// EnsureStorage creates <storage-root>/upstream with mode 0770 if it does
// not already exist.
func (r *Registry) EnsureStorage() error {
	return os.MkdirAll(r.upstreamDir, 0o770)
}

// drainInterval is how often the poll controller's scheduler drains the
// pending-action queue; see PollController.scheduleDrain.
const drainInterval = 200 * time.Millisecond

// Start begins running the poll controller's scheduler: the per-entry
// ping timers and the pending-action drain tick.
func (r *Registry) Start() {
	if err := r.controller.scheduleDrain(drainInterval, r.applyPendingAction); err != nil {
		log.Errorf("upstream: failed to schedule pending-action drain: %v", err)
	}
	r.controller.Start()
}

// Shutdown stops the poll controller's scheduler.
func (r *Registry) Shutdown() error { return r.controller.Shutdown() }

// Load scans <storage-root>/upstream and materializes one entry per
// regular file whose contents parse as a valid upstream entry. A file
// that fails schema validation or JSON decoding is a ParseError: it is
// logged and skipped, and loading continues with the rest.
// Loaded entries are never re-saved, since the file on disk is already the
// source of truth for them.
func (r *Registry) Load() error {
	dirEntries, err := os.ReadDir(r.upstreamDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("upstream: reading %s: %w", r.upstreamDir, err)
	}

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(r.upstreamDir, de.Name())
		displayName := unescapeName(de.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("upstream: skipping %q: %v", displayName, err)
			continue
		}
		if err := validateEntryJSON(raw); err != nil {
			log.Warnf("upstream: skipping %q: schema validation failed: %v", displayName, err)
			continue
		}
		var settings Settings
		if err := json.Unmarshal(raw, &settings); err != nil {
			log.Warnf("upstream: skipping %q: %v", displayName, err)
			continue
		}
		if _, err := r.addConnection(settings, false); err != nil {
			log.Warnf("upstream: skipping %q: %v", displayName, err)
		}
	}
	return nil
}

// AddConnection implements the add_connection action:
// validates the required fields, rejects name collisions, builds the
// entry's node subtrees, starts a poll if enabled, and persists it.
func (r *Registry) AddConnection(settings Settings) (*Entry, error) {
	return r.addConnection(settings, true)
}

func (r *Registry) addConnection(settings Settings, persist bool) (*Entry, error) {
	settings = applyTokenGroupDefault(settings)
	if err := settings.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.entries[settings.Name]; exists {
		r.mu.Unlock()
		return nil, ErrInvalidParameter
	}
	entry := buildEntry(r, settings)
	r.entries[settings.Name] = entry
	r.mu.Unlock()

	r.sysParent.AddChild(entry.Config)
	r.dataParent.AddChild(entry.Data)
	r.hooks.fire(Added, settings.Name)

	if settings.Enabled {
		r.startPoll(entry)
	}
	if persist {
		if err := r.save(entry); err != nil {
			log.Errorf("upstream: failed to persist %q: %v", settings.Name, err)
		}
	}
	return entry, nil
}

// Get returns the named entry, if any.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the names of all currently registered entries.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}

// Delete implements the "delete" action on an entry:
// callerName is the name of the upstream link driving the current
// event-loop turn, if any (see PollController.executeOrSchedule); pass ""
// when the caller is not itself a live upstream (e.g. a local admin
// request).
func (r *Registry) Delete(callerName, name string) error {
	entry, ok := r.Get(name)
	if !ok {
		return ErrNotFound
	}
	if entry.Poll == nil {
		// No poll to protect from a concurrent free: apply immediately.
		r.applyPendingAction(&Poll{Name: name, Entry: entry, pendingAction: PendingDelete})
		return nil
	}
	r.controller.executeOrSchedule(callerName, entry.Poll, PendingDelete, r.applyPendingAction)
	return nil
}

// startPoll attaches a Poll (and its ping timer) to entry, honoring the
// "at most one UpstreamPoll per name" invariant.
func (r *Registry) startPoll(entry *Entry) {
	if entry.Poll != nil {
		return
	}
	p := &Poll{Name: entry.Settings.Name, Entry: entry}

	var handler PingHandler
	if r.pingHandler != nil {
		handler = r.pingHandler(entry.Settings.Name)
	}
	if err := r.controller.startPing(p, handler); err != nil {
		log.Errorf("upstream: failed to start ping timer for %q: %v", entry.Settings.Name, err)
		return
	}
	entry.Poll = p
	r.hooks.fire(Enabled, entry.Settings.Name)
	r.reportPollsActive()
}

// reportPollsActive recounts entries with a running poll and reports it to
// the configured metrics collector, if any.
func (r *Registry) reportPollsActive() {
	r.mu.Lock()
	n := 0
	for _, e := range r.entries {
		if e.Poll != nil {
			n++
		}
	}
	r.mu.Unlock()
	r.metrics.SetPollsActive(n)
}

// DrainPending applies every pending action scheduled since the last
// drain, in schedule order. Call this from the event loop's safe point
// between I/O dispatches.
func (r *Registry) DrainPending() {
	r.controller.drain(r.applyPendingAction)
}

// applyPendingAction executes one poll's pending action. It is the only
// place stop/reset/delete semantics are implemented, whether reached via
// the deferred queue or the immediate-execution carve-out.
func (r *Registry) applyPendingAction(p *Poll) {
	action := p.pendingAction
	p.pendingAction = PendingNone
	entry := p.Entry

	switch action {
	case PendingStop:
		r.teardownPoll(p)
		r.hooks.fire(Disabled, entry.Settings.Name)

	case PendingDelete:
		r.teardownPoll(p)
		r.deleteFile(entry.Settings.Name)
		r.removeEntry(entry)
		r.hooks.fire(Deleted, entry.Settings.Name)

	case PendingReset:
		snapshot := entry.readSettings().Clone()
		r.teardownPoll(p)
		r.deleteFile(entry.Settings.Name)
		r.removeEntry(entry)
		if _, err := r.addConnection(snapshot, true); err != nil {
			log.Errorf("upstream: reset of %q failed to recreate entry: %v", snapshot.Name, err)
			return
		}
		r.hooks.fire(Reset, snapshot.Name)

	case PendingNone:
		// Collapsed away by a later schedule before this drain; nothing
		// to do.
	}
}

// teardownPoll stops the ping timer and clears the entry's back-reference
// to the poll before any further freeing happens, per the destruction
// order (poll -> timer -> entry).
func (r *Registry) teardownPoll(p *Poll) {
	if p.stopPing != nil {
		if err := p.stopPing(); err != nil {
			log.Warnf("upstream: failed to stop ping timer for %q: %v", p.Name, err)
		}
	}
	if p.Entry != nil {
		p.Entry.Poll = nil
	}
	r.reportPollsActive()
}

// removeEntry detaches entry's config and data nodes from the tree and
// forgets it.
func (r *Registry) removeEntry(entry *Entry) {
	r.sysParent.RemoveChild(entry.Config.Name)
	r.dataParent.RemoveChild(entry.Data.Name)

	r.mu.Lock()
	delete(r.entries, entry.Settings.Name)
	r.mu.Unlock()
}

// save writes entry's settings to <storage-root>/upstream/<escaped-name>,
// via a temp-file-then-rename so a reader never observes a partially
// written file.
func (r *Registry) save(entry *Entry) error {
	raw, err := json.Marshal(entry.Settings)
	if err != nil {
		return err
	}
	path := r.pathFor(entry.Settings.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o660); err != nil {
		return fmt.Errorf("upstream: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("upstream: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// deleteFile removes the on-disk file for name. A missing file is not an
// error: delete is idempotent.
func (r *Registry) deleteFile(name string) {
	if err := os.Remove(r.pathFor(name)); err != nil && !os.IsNotExist(err) {
		log.Errorf("upstream: failed to remove file for %q: %v", name, err)
	}
}

func (r *Registry) pathFor(name string) string {
	return filepath.Join(r.upstreamDir, escapeName(name))
}
