package node_test

import (
	"testing"

	"github.com/dsbroker/broker/internal/node"
	"github.com/dsbroker/broker/pkg/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetChild(t *testing.T) {
	root := node.New("root", node.Internal)
	child := node.New("x", node.Internal)
	root.AddChild(child)

	got, ok := root.GetChild("x")
	require.True(t, ok)
	assert.Same(t, child, got)
	assert.Same(t, root, child.Parent)
}

func TestRemoveChild(t *testing.T) {
	root := node.New("root", node.Internal)
	root.AddChild(node.New("x", node.Internal))
	root.RemoveChild("x")
	_, ok := root.GetChild("x")
	assert.False(t, ok)
}

func TestSetValueFiresListenersAfterCommit(t *testing.T) {
	n := node.New("prop", node.Internal)
	var seenDuringCallback interface{}
	n.OnValueUpdate(func(n *node.Node) {
		seenDuringCallback = n.Value
	})
	n.SetValue("hello")
	assert.Equal(t, "hello", seenDuringCallback)
}

func TestDownstreamNodeHasOverlay(t *testing.T) {
	d := node.New("dev", node.Downstream)
	root, ok := d.Overlay()
	require.True(t, ok)
	require.NotNil(t, root)

	plain := node.New("plain", node.Internal)
	_, ok = plain.Overlay()
	require.False(t, ok)
}

func TestNodeSatisfiesPermissionNodeInterface(t *testing.T) {
	var _ permission.Node = (*node.Node)(nil)

	root := node.New("root", node.Internal)
	root.SetList(permission.List{{Group: permission.DefaultGroup, Level: permission.Read}})
	child := node.New("x", node.Internal)
	root.AddChild(child)

	got := permission.Resolve("/x", root, permission.Groups{"anyone"})
	assert.Equal(t, permission.Read, got)
}

func TestChildNamesSorted(t *testing.T) {
	root := node.New("root", node.Internal)
	root.AddChild(node.New("b", node.Internal))
	root.AddChild(node.New("a", node.Internal))
	root.AddChild(node.New("c", node.Internal))
	assert.Equal(t, []string{"a", "b", "c"}, root.ChildNames())
}
