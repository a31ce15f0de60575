package joy

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lessisbetter/json-joy-rs-sub002/diff"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

// Listener sees every patch a Document applies, local or remote.
type Listener func(p *patch.Patch)

/*
	Document is a model with path-based editing. Every edit is turned
	into a patch, applied, and handed to the change listeners; the
	caller ships the returned patch to other replicas.
*/
type Document struct {
	mu     sync.Mutex
	m      *model.Model
	lstns  *xsync.MapOf[uint64, Listener]
	nextID atomic.Uint64
}

func NewDocument(m *model.Model) *Document {
	return &Document{m: m, lstns: xsync.NewMapOf[uint64, Listener]()}
}

// Model returns the underlying model. Mutating it directly skips the
// listeners.
func (d *Document) Model() *model.Model {
	return d.m
}

func (d *Document) View() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.m.View()
}

// Find returns the view of the node at path.
func (d *Document) Find(path ...any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.m.Find(path)
	if err != nil {
		return nil, err
	}
	v, _ := d.m.ViewNode(n.ID())
	return v, nil
}

// Set writes value at path; an empty path replaces the whole document.
func (d *Document) Set(path []any, value any) (*patch.Patch, error) {
	return d.edit(path, func(any) (any, error) { return value, nil })
}

// Remove deletes an object key or an array element.
func (d *Document) Remove(path []any) (*patch.Patch, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: cannot remove the root", model.ErrNotFound)
	}
	parent, last := path[:len(path)-1], path[len(path)-1]
	return d.edit(parent, func(v any) (any, error) {
		switch x := v.(type) {
		case map[string]any:
			key, ok := last.(string)
			if !ok {
				return nil, fmt.Errorf("%w: key %v", model.ErrNotFound, last)
			}
			if _, ok := x[key]; !ok {
				return nil, fmt.Errorf("%w: key %q", model.ErrNotFound, key)
			}
			delete(x, key)
			return x, nil
		case []any:
			i, ok := index(last, len(x)-1)
			if !ok {
				return nil, fmt.Errorf("%w: index %v", model.ErrNotFound, last)
			}
			return append(x[:i], x[i+1:]...), nil
		}
		return nil, fmt.Errorf("%w: %v is not a container", model.ErrNotFound, parent)
	})
}

// Insert puts value before position i of the array at path.
func (d *Document) Insert(path []any, i int, value any) (*patch.Patch, error) {
	return d.edit(path, func(v any) (any, error) {
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not an array", joy_errors.ErrUnsupportedShape, path)
		}
		if i < 0 || i > len(arr) {
			return nil, fmt.Errorf("%w: index %d", model.ErrNotFound, i)
		}
		out := make([]any, 0, len(arr)+1)
		out = append(out, arr[:i]...)
		out = append(out, value)
		return append(out, arr[i:]...), nil
	})
}

// StrIns inserts text at rune position pos of the string at path.
func (d *Document) StrIns(path []any, pos int, text string) (*patch.Patch, error) {
	d.mu.Lock()
	n, err := d.m.Find(path)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	str, ok := n.(*model.StrNode)
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %v is not a string", joy_errors.ErrUnsupportedShape, path)
	}
	items := str.Seq.Items()
	if pos < 0 || pos > len(items) {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: position %d", model.ErrNotFound, pos)
	}
	after := str.ID()
	if pos > 0 {
		after = items[pos-1].ID
	}
	if text == "" {
		d.mu.Unlock()
		return nil, nil
	}
	b := patch.NewBuilder(d.m.Clock(d.m.Sid()))
	b.InsStr(str.ID(), after, text)
	p := b.Flush()
	err = apply(d.m, p)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	d.notify(p)
	return p, nil
}

// Apply merges a patch from another replica.
func (d *Document) Apply(p *patch.Patch) error {
	d.mu.Lock()
	err := apply(d.m, p)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.notify(p)
	return nil
}

func (d *Document) OnChange(l Listener) uint64 {
	id := d.nextID.Add(1)
	d.lstns.Store(id, l)
	return id
}

func (d *Document) OffChange(id uint64) {
	d.lstns.Delete(id)
}

func (d *Document) notify(p *patch.Patch) {
	d.lstns.Range(func(_ uint64, l Listener) bool {
		l(p)
		return true
	})
}

// edit rewrites a private copy of the view at path and diffs the
// model towards it.
func (d *Document) edit(path []any, f func(any) (any, error)) (*patch.Patch, error) {
	d.mu.Lock()
	view, err := protocol.Normalize(d.m.View())
	if err == nil {
		view, err = rewrite(view, path, f)
	}
	var p *patch.Patch
	if err == nil {
		p, _, err = diff.Diff(d.m, view, d.m.Sid())
	}
	if err == nil && p != nil {
		err = apply(d.m, p)
	}
	d.mu.Unlock()
	if err != nil || p == nil {
		return nil, err
	}
	d.notify(p)
	return p, nil
}

func rewrite(v any, path []any, f func(any) (any, error)) (any, error) {
	if len(path) == 0 {
		return f(v)
	}
	switch x := v.(type) {
	case map[string]any:
		key, ok := path[0].(string)
		if !ok {
			break
		}
		child, ok := x[key]
		if !ok && len(path) > 1 {
			break
		}
		nv, err := rewrite(child, path[1:], f)
		if err != nil {
			return nil, err
		}
		x[key] = nv
		return x, nil
	case []any:
		i, ok := index(path[0], len(x)-1)
		if !ok {
			break
		}
		nv, err := rewrite(x[i], path[1:], f)
		if err != nil {
			return nil, err
		}
		x[i] = nv
		return x, nil
	}
	return nil, fmt.Errorf("%w: %v", model.ErrNotFound, path)
}

func index(step any, hi int) (int, bool) {
	var i int
	switch x := step.(type) {
	case int:
		i = x
	case int64:
		i = int(x)
	case uint64:
		i = int(x)
	case float64:
		i = int(x)
		if float64(i) != x {
			return 0, false
		}
	default:
		return 0, false
	}
	return i, i >= 0 && i <= hi
}
