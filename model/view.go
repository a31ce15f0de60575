package model

import (
	"strconv"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

// View materializes the document as a JSON value.
func (m *Model) View() any {
	if m.opaque != nil || !m.hasRoot {
		return nil
	}
	v, ok := m.ViewNode(m.root)
	if !ok {
		return nil
	}
	return v
}

// ViewNode materializes one node. present is false for missing nodes
// and undefined constants; containers drop such children.
func (m *Model) ViewNode(id clock.Ts) (v any, present bool) {
	return m.view(id, map[clock.Ts]bool{})
}

func (m *Model) view(id clock.Ts, path map[clock.Ts]bool) (any, bool) {
	n, ok := m.nodes[id]
	if !ok || path[id] {
		return nil, false
	}
	path[id] = true
	defer delete(path, id)

	switch x := n.(type) {
	case *ConNode:
		if x.IsRef {
			return m.view(x.Ref, path)
		}
		if x.Value == protocol.Undefined {
			return nil, false
		}
		return x.Value, true
	case *ValNode:
		if v, ok := m.view(x.Child, path); ok {
			return v, true
		}
		return nil, true
	case *ObjNode:
		out := make(map[string]any, len(x.Keys))
		for k, child := range x.Keys {
			if v, ok := m.view(child, path); ok {
				out[k] = v
			}
		}
		return out, true
	case *VecNode:
		out := make([]any, x.Width())
		n := 0
		for i, child := range x.Slots {
			if v, ok := m.view(child, path); ok {
				out[i] = v
				n = max(n, i+1)
			}
		}
		return out[:n], true
	case *StrNode:
		return string(x.Seq.Live()), true
	case *BinNode:
		live := x.Seq.Live()
		out := make(map[string]any, len(live))
		for i, b := range live {
			out[strconv.Itoa(i)] = int64(b)
		}
		return out, true
	case *ArrNode:
		out := make([]any, 0, x.Seq.Len())
		for _, child := range x.Seq.Live() {
			if v, ok := m.view(child, path); ok {
				out = append(out, v)
			}
		}
		return out, true
	}
	return nil, false
}

// VecLen is the length of the vec's view: trailing slots whose value is
// absent do not count.
func (m *Model) VecLen(v *VecNode) int {
	n := 0
	for i, child := range v.Slots {
		if i+1 > n {
			if _, ok := m.ViewNode(child); ok {
				n = i + 1
			}
		}
	}
	return n
}

// Visible reports whether a container entry pointing at id shows up in
// the view.
func (m *Model) Visible(id clock.Ts) bool {
	n, ok := m.nodes[id]
	if !ok {
		return false
	}
	if c, ok := n.(*ConNode); ok && !c.IsRef && c.Value == protocol.Undefined {
		return false
	}
	return true
}

// Resolve follows con references and returns the node they end at.
func (m *Model) Resolve(id clock.Ts) (Node, bool) {
	for hops := 0; hops <= len(m.nodes); hops++ {
		n, ok := m.nodes[id]
		if !ok {
			return nil, false
		}
		c, isCon := n.(*ConNode)
		if !isCon || !c.IsRef {
			return n, true
		}
		id = c.Ref
	}
	return nil, false
}
