// Package node implements the minimal broker node tree the permission
// resolver and the upstream subsystem are built on: name, children, an
// optional permission list, and the downstream/internal discriminant. The
// generic node tree CRUD, its metadata ($writable/$invokable/$type), and
// the list/subscribe/invoke stream machinery that a full DSA broker needs
// are out of scope — this package stays deliberately thin,
// covering only what the two in-scope subsystems require.
package node

import (
	"sort"
	"sync"

	"github.com/dsbroker/broker/pkg/permission"
)

// Kind discriminates an ordinary broker node from one rooted at a
// downstream link.
type Kind int

const (
	Internal Kind = iota
	Downstream
)

// Listener is invoked after a value write on the node it is attached to
// commits. It must not synchronously free the node: destructive actions
// triggered by a listener are expected to go through a deferred pending
// action (see internal/upstream).
type Listener func(n *Node)

// Node is a broker tree node: a name segment, a child map, an optional
// permission list, and (for Kind == Downstream) an overlay tree of virtual
// permission nodes shadowing the real children contributed by the
// downstream device.
type Node struct {
	mu sync.RWMutex

	Name   string
	Kind   Kind
	Parent *Node
	Value  interface{}

	children map[string]*Node
	list     permission.List

	// overlay is non-nil only for Kind == Downstream.
	overlay *permission.VirtualPermissionNode

	onValueUpdate []Listener
}

// New creates a detached node with no children and no permission list.
func New(name string, kind Kind) *Node {
	n := &Node{Name: name, Kind: kind}
	if kind == Downstream {
		n.overlay = permission.NewOverlay()
	}
	return n
}

// AddChild attaches child under n, replacing any existing child of the
// same name.
func (n *Node) AddChild(child *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	child.Parent = n
	n.children[child.Name] = child
}

// RemoveChild detaches the named child, if any.
func (n *Node) RemoveChild(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.children, name)
}

// GetChild returns the named child and whether it exists.
func (n *Node) GetChild(name string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.children[name]
	return c, ok
}

// ChildNames returns the node's child names in sorted order, for stable
// iteration (e.g. directory listings, tests).
func (n *Node) ChildNames() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetList sets the node's own permission list. A nil list means the node
// carries no permissions of its own (and, if n is the resolver's root,
// makes the broker unsecured at that root).
func (n *Node) SetList(list permission.List) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = list
}

// SetValue updates the node's value and fires its on-value-update
// listeners. Listeners run after the write is committed.
func (n *Node) SetValue(v interface{}) {
	n.mu.Lock()
	n.Value = v
	listeners := append([]Listener(nil), n.onValueUpdate...)
	n.mu.Unlock()

	for _, l := range listeners {
		l(n)
	}
}

// OnValueUpdate registers a listener for future SetValue calls.
func (n *Node) OnValueUpdate(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onValueUpdate = append(n.onValueUpdate, l)
}

// List implements permission.Node.
func (n *Node) List() permission.List {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.list
}

// Child implements permission.Node.
func (n *Node) Child(name string) (permission.Node, bool) {
	c, ok := n.GetChild(name)
	if !ok {
		return nil, false
	}
	return c, true
}

// Overlay implements permission.Node.
func (n *Node) Overlay() (*permission.VirtualPermissionNode, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.Kind != Downstream {
		return nil, false
	}
	return n.overlay, true
}

// OverlayNode returns the node's overlay root regardless of Kind, or nil
// if it is not a downstream node. internal/adminapi uses it to expose an
// upstream entry's overlay tree without going through the permission.Node
// bool-ok accessor.
func (n *Node) OverlayNode() *permission.VirtualPermissionNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.overlay
}

var _ permission.Node = (*Node)(nil)
