package upstream

import (
	"github.com/dsbroker/broker/internal/node"
	"github.com/dsbroker/broker/pkg/log"
)

// Entry is an upstream entry: a config node tree with six property
// children and a delete action, paired with the live downstream node its
// poll attaches data to, and the Poll itself once one exists.
type Entry struct {
	Config   *node.Node // name == Settings.Name; parent is the registry's system upstream node
	Data     *node.Node // the DownstreamNode registered under the broker's "/upstream" tree
	Settings Settings
	Poll     *Poll // nil until a poll is running; cleared by poll teardown before Config/Data may be freed

	registry *Registry
}

// buildEntry creates the config node tree for settings: six property
// children plus a "delete" child, each property wired to its prop-changed /
// enable-changed listener. No $writable/$invokable metadata is attached
// (internal/node carries none), and the "delete" child has no invoke
// handler of its own: deletion goes through Registry.Delete.
func buildEntry(reg *Registry, settings Settings) *Entry {
	e := &Entry{Settings: settings, registry: reg}
	e.Config = node.New(settings.Name, node.Internal)

	addProp := func(name, value string) *node.Node {
		p := node.New(name, node.Internal)
		p.Value = value
		e.Config.AddChild(p)
		p.OnValueUpdate(e.onPropChanged)
		return p
	}
	addProp("name", settings.Name)
	addProp("brokerName", settings.BrokerName)
	addProp("url", settings.URL)
	addProp("token", settings.Token)
	addProp("group", settings.Group)

	enabled := node.New("enabled", node.Internal)
	enabled.Value = settings.Enabled
	e.Config.AddChild(enabled)
	enabled.OnValueUpdate(e.onEnableChanged)

	del := node.New("delete", node.Internal)
	e.Config.AddChild(del)

	e.Data = node.New(settings.Name, node.Downstream)

	return e
}

// readSettings reconstructs a Settings value from the entry's current
// property node values (used by reset, which must deep-copy the live
// values rather than the value captured at creation time).
func (e *Entry) readSettings() Settings {
	get := func(name string) string {
		c, ok := e.Config.GetChild(name)
		if !ok {
			return ""
		}
		s, _ := c.Value.(string)
		return s
	}
	enabled := true
	if c, ok := e.Config.GetChild("enabled"); ok {
		if b, ok := c.Value.(bool); ok {
			enabled = b
		}
	}
	return Settings{
		Name:       get("name"),
		BrokerName: get("brokerName"),
		URL:        get("url"),
		Token:      get("token"),
		Group:      get("group"),
		Enabled:    enabled,
	}
}

// onPropChanged is the prop-changed listener on
// {name, brokerName, url, token, group}: schedule a reset if a poll is
// live, otherwise rebuild the entry in place from current values and
// re-save, since there is nothing running that a concurrent rebuild could
// corrupt.
func (e *Entry) onPropChanged(*node.Node) {
	if e.Poll != nil {
		e.registry.controller.schedule(e.Poll, PendingReset)
		return
	}
	e.rebuildInPlace()
}

// onEnableChanged is the enable-changed listener: becoming false schedules
// a stop, becoming true starts a fresh poll from current settings. Either
// way the entry is persisted.
func (e *Entry) onEnableChanged(n *node.Node) {
	enabled, _ := n.Value.(bool)
	if !enabled {
		e.Settings.Enabled = false
		if e.Poll != nil {
			e.registry.controller.schedule(e.Poll, PendingStop)
		}
	} else {
		e.Settings = e.readSettings()
		e.Settings.Enabled = true
		e.registry.startPoll(e)
	}
	if err := e.registry.save(e); err != nil {
		log.Errorf("upstream: failed to persist %q after enable change: %v", e.Settings.Name, err)
	}
}

// rebuildInPlace refreshes e.Settings from the live property values and
// re-saves, without touching e.Config/e.Data identity. Used when a
// property changes but no poll is attached to protect.
func (e *Entry) rebuildInPlace() {
	e.Settings = e.readSettings()
	if err := e.registry.save(e); err != nil {
		log.Errorf("upstream: failed to persist %q after property change: %v", e.Settings.Name, err)
	}
}
