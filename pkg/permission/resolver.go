package permission

import "strings"

// Node is the read-only view of a broker tree node the resolver needs.
// internal/node.Node implements this so the resolver stays independent of
// the broker's node-tree implementation (and of its CRUD/streaming
// machinery, which is out of scope for this package).
type Node interface {
	// List returns the node's own permission list, or nil if it carries
	// none.
	List() List
	// Child looks up a direct child by name among the node's real
	// children (not its overlay).
	Child(name string) (Node, bool)
	// Overlay returns the node's permission overlay root and true if the
	// node is a downstream node (and therefore may shadow its real
	// children with virtual permission nodes); ok is false for any other
	// node kind.
	Overlay() (root *VirtualPermissionNode, ok bool)
}

// Resolve answers "what is the effective permission level of caller on
// path, starting at root?" If root carries no permission list at all, the
// broker is unsecured and the result is Config, whatever the path.
// Otherwise path must begin with "/"; any other path resolves to None. The
// resolver never fails: an unknown path or a missing child ends the
// descent and the levels merged so far decide the result, and an empty
// group set resolves to None.
func Resolve(path string, root Node, caller Groups) Level {
	if root.List() == nil {
		return Config
	}
	if !strings.HasPrefix(path, "/") {
		return None
	}

	levels := make(map[string]Level, len(caller))
	for _, g := range caller {
		levels[g] = None
	}

	if walkBrokerNode(path[1:], root, caller, levels) {
		return Config
	}

	max := None
	for _, l := range levels {
		if l > max {
			max = l
		}
	}
	return max
}

// mergeList performs the group-local merge at one node: for each caller
// group, the first pair in list whose group matches exactly or matches
// DefaultGroup contributes its level. It reports whether any group merged
// in Config, in which case the caller short-circuits the whole descent.
func mergeList(list List, caller Groups, levels map[string]Level) bool {
	sawConfig := false
	for _, g := range caller {
		for _, pair := range list {
			if pair.Group == g || pair.Group == DefaultGroup {
				if levels[g] < pair.Level {
					levels[g] = pair.Level
					if pair.Level == Config {
						sawConfig = true
					}
				}
				break
			}
		}
	}
	return sawConfig
}

// walkBrokerNode descends the real broker tree. remainder is the path
// still to be consumed, already stripped of its leading "/". It returns
// true the instant any group's merge yields Config.
func walkBrokerNode(remainder string, node Node, caller Groups, levels map[string]Level) bool {
	if list := node.List(); list != nil {
		if mergeList(list, caller, levels) {
			return true
		}
	}
	if remainder == "" {
		return false
	}

	name, rest := splitHead(remainder)
	if name == "" {
		return false
	}

	if overlay, ok := node.Overlay(); ok {
		if overlay == nil {
			return false
		}
		child := overlay.child(name)
		if child == nil {
			return false
		}
		return walkOverlayNode(rest, child, caller, levels)
	}

	child, ok := node.Child(name)
	if !ok {
		return false
	}
	return walkBrokerNode(rest, child, caller, levels)
}

// walkOverlayNode descends the virtual permission tree grafted onto a
// downstream node. Once overlay descent begins it never switches back to
// real broker children: the overlay is the authoritative shape for
// whatever subtree it covers.
func walkOverlayNode(remainder string, node *VirtualPermissionNode, caller Groups, levels map[string]Level) bool {
	if node.List != nil {
		if mergeList(node.List, caller, levels) {
			return true
		}
	}
	if remainder == "" {
		return false
	}

	name, rest := splitHead(remainder)
	if name == "" {
		return false
	}

	child := node.child(name)
	if child == nil {
		return false
	}
	return walkOverlayNode(rest, child, caller, levels)
}

// splitHead splits remainder at the first '/', returning the head segment
// and everything after the separator (or "" if there is none). A trailing
// "/" yields an empty head, which the callers treat as "no further
// descent" rather than a child literally named "".
func splitHead(remainder string) (head, rest string) {
	if i := strings.IndexByte(remainder, '/'); i >= 0 {
		return remainder[:i], remainder[i+1:]
	}
	return remainder, ""
}
