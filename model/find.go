package model

import (
	"errors"
	"fmt"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
)

var ErrNotFound = errors.New("model: path not found")

/*
	Find walks path from the root and returns the node it ends at. Keys
	index objects, integers index arrays (visible elements only) and
	vecs. val registers and con references are stepped through.
*/
func (m *Model) Find(path []any) (Node, error) {
	if !m.hasRoot {
		return nil, ErrNotFound
	}
	n, ok := m.Deref(m.root)
	if !ok {
		return nil, ErrNotFound
	}
	for i, step := range path {
		next, ok := m.step(n, step)
		if !ok {
			return nil, fmt.Errorf("%w: step %d (%v)", ErrNotFound, i, step)
		}
		if n, ok = m.Deref(next); !ok {
			return nil, fmt.Errorf("%w: step %d (%v)", ErrNotFound, i, step)
		}
	}
	return n, nil
}

// Deref resolves references and val registers down to a data node.
func (m *Model) Deref(id clock.Ts) (Node, bool) {
	for hops := 0; hops <= len(m.nodes); hops++ {
		n, ok := m.Resolve(id)
		if !ok {
			return nil, false
		}
		v, isVal := n.(*ValNode)
		if !isVal {
			return n, true
		}
		id = v.Child
	}
	return nil, false
}

func (m *Model) step(n Node, step any) (clock.Ts, bool) {
	switch x := n.(type) {
	case *ObjNode:
		key, ok := step.(string)
		if !ok {
			return clock.Ts{}, false
		}
		id, ok := x.Keys[key]
		return id, ok && m.Visible(id)
	case *VecNode:
		idx, ok := pathIndex(step)
		if !ok {
			return clock.Ts{}, false
		}
		id, ok := x.Slots[idx]
		return id, ok
	case *ArrNode:
		idx, ok := pathIndex(step)
		if !ok {
			return clock.Ts{}, false
		}
		for _, id := range x.Seq.Live() {
			if !m.Visible(id) {
				continue
			}
			if idx == 0 {
				return id, true
			}
			idx--
		}
	}
	return clock.Ts{}, false
}

func pathIndex(step any) (int, bool) {
	switch x := step.(type) {
	case int:
		return x, x >= 0
	case int64:
		return int(x), x >= 0
	case uint64:
		return int(x), x < 1<<31
	case float64:
		return int(x), x >= 0 && x == float64(int(x))
	}
	return 0, false
}
