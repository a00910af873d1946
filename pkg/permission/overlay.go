package permission

import "strings"

// VirtualPermissionNode is a lightweight tree mirroring a downstream path
// prefix. It attaches permissions to paths the broker does not itself
// host, shadowing the real tree of children contributed by a downstream
// device.
type VirtualPermissionNode struct {
	List     List
	Children map[string]*VirtualPermissionNode
}

// NewOverlay returns an empty overlay root.
func NewOverlay() *VirtualPermissionNode {
	return &VirtualPermissionNode{}
}

func (n *VirtualPermissionNode) child(name string) *VirtualPermissionNode {
	if n.Children == nil {
		return nil
	}
	return n.Children[name]
}

// Attach creates any missing intermediate overlay nodes along path and
// replaces the permission list at the leaf. An empty path attaches the
// list at root itself.
func Attach(root *VirtualPermissionNode, path string, list List) {
	node := root
	for _, seg := range splitSegments(path) {
		if node.Children == nil {
			node.Children = make(map[string]*VirtualPermissionNode)
		}
		next, ok := node.Children[seg]
		if !ok {
			next = &VirtualPermissionNode{}
			node.Children[seg] = next
		}
		node = next
	}
	node.List = list
}

// Free releases root's children and their lists, post-order. root itself
// is left as an empty node and may be reused.
func Free(root *VirtualPermissionNode) {
	for name, child := range root.Children {
		Free(child)
		delete(root.Children, name)
	}
	root.List = nil
}

// splitSegments yields the non-empty '/'-separated segments of path. Empty
// segments produced by "//" are dropped rather than matching a child named
// "".
func splitSegments(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
