package permission

import "encoding/json"

// DefaultGroup matches every caller regardless of its asserted group name.
const DefaultGroup = "default"

// Pair is the atomic permission record: a group name and the level it
// grants. A pair with Group == DefaultGroup matches every caller that no
// earlier, more specific pair in the same List already matched.
type Pair struct {
	Group string
	Level Level
}

// List is an ordered sequence of Pairs attached to one node. Order is
// significant: for a given caller group, the first matching pair wins.
type List []Pair

// Groups is the ordered set of group names a link asserts for its caller.
// Duplicates are allowed but carry no extra weight.
type Groups []string

// Save encodes the list as the persisted JSON form: an array of
// [group, levelName] pairs. Pairs at level Never are omitted, since Never
// is a sentinel that must never be persisted.
func (l List) Save() json.RawMessage {
	out := make([][2]string, 0, len(l))
	for _, p := range l {
		if p.Level >= Never {
			continue
		}
		out = append(out, [2]string{p.Group, p.Level.String()})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		// [][2]string of strings cannot fail to marshal.
		panic(err)
	}
	return raw
}

// LoadList decodes the persisted JSON form produced by List.Save. An empty
// or non-array input yields an empty list. A pair that fails to parse
// (wrong shape, non-string members) is skipped silently; parsing continues
// with the remaining pairs. Unknown level names coerce to None.
func LoadList(raw json.RawMessage) List {
	if len(raw) == 0 {
		return List{}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return List{}
	}
	out := make(List, 0, len(entries))
	for _, e := range entries {
		var pair []string
		if err := json.Unmarshal(e, &pair); err != nil || len(pair) != 2 {
			continue
		}
		out = append(out, Pair{Group: pair[0], Level: ParseLevel(pair[1])})
	}
	return out
}
