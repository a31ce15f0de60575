// Package diff computes the patch that moves a model to a target view.
package diff

import (
	"errors"
	"fmt"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

// Layer names the strategy that produced a patch.
type Layer string

const (
	LayerNoop        Layer = "noop"
	LayerBootstrap   Layer = "bootstrap"
	LayerScalarRoot  Layer = "scalar-root"
	LayerGenericRoot Layer = "generic-root"
	LayerNested      Layer = "nested"
	LayerArray       Layer = "array"
	LayerBin         Layer = "bin"
	LayerString      Layer = "string"
	LayerReplace     Layer = "replace"
)

// errRefuse tells the engine a layer does not cover the shape.
var errRefuse = errors.New("diff: layer does not apply")

type layer struct {
	name Layer
	emit func(d *differ) error
}

var layers = []layer{
	{LayerBootstrap, (*differ).bootstrap},
	{LayerScalarRoot, (*differ).scalarRoot},
	{LayerGenericRoot, (*differ).genericRoot},
	{LayerNested, walkLayer(caps{})},
	{LayerArray, walkLayer(caps{arr: true})},
	{LayerBin, walkLayer(caps{arr: true, bin: true})},
	{LayerString, walkLayer(caps{arr: true, bin: true, str: true})},
	{LayerReplace, (*differ).replace},
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", joy_errors.ErrUnsupportedShape, fmt.Sprintf(format, args...))
}

/*
	Diff returns a patch that, applied to m, makes its view equal target.
	A nil patch means the views already match. Candidate patches are
	tried layer by layer on a clone of m; the first one that reproduces
	target is returned together with the layer that built it. Ops are
	stamped by session sid starting right after the model's time.
*/
func Diff(m *model.Model, target any, sid uint64) (*patch.Patch, Layer, error) {
	if m.Opaque() {
		return nil, "", unsupported("opaque model")
	}
	if m.Server() {
		if sid != clock.SidServer {
			return nil, "", unsupported("session %d on a server clock model", sid)
		}
	} else if !clock.ValidSessionID(sid) {
		return nil, "", unsupported("session %d", sid)
	}
	target, err := protocol.Normalize(target)
	if err != nil || target == protocol.Undefined {
		return nil, "", unsupported("target is not a JSON value")
	}
	base := m.View()
	if protocol.Equal(base, target) {
		return nil, LayerNoop, nil
	}
	for _, l := range layers {
		d := &differ{m: m, target: target, base: base, b: patch.NewBuilder(m.Clock(sid))}
		if err := l.emit(d); err != nil {
			if errors.Is(err, errRefuse) {
				continue
			}
			return nil, "", err
		}
		p := d.b.Flush()
		if p.Empty() || !verify(m, p, target) {
			continue
		}
		return p, l.name, nil
	}
	return nil, "", unsupported("no layer reproduces the target")
}

func verify(m *model.Model, p *patch.Patch, target any) bool {
	c := m.Clone()
	if err := c.Apply(p); err != nil {
		return false
	}
	return protocol.Equal(c.View(), target)
}

type differ struct {
	m      *model.Model
	b      *patch.Builder
	base   any
	target any
	caps   caps
}

// rootObj is the object node the root register resolves to.
func (d *differ) rootObj() (*model.ObjNode, bool) {
	root, ok := d.m.Root()
	if !ok {
		return nil, false
	}
	n, ok := d.m.Deref(root)
	if !ok {
		return nil, false
	}
	obj, ok := n.(*model.ObjNode)
	return obj, ok
}

func (d *differ) bootstrap() error {
	dst, ok := d.target.(map[string]any)
	if !ok {
		return errRefuse
	}
	var obj clock.Ts
	if d.base == nil {
		if _, hasRoot := d.m.Root(); hasRoot {
			return errRefuse
		}
		obj = d.b.Obj()
		d.b.Root(obj)
	} else {
		src, ok := d.base.(map[string]any)
		n, isObj := d.rootObj()
		if !ok || !isObj || len(src) > 0 {
			return errRefuse
		}
		obj = n.ID()
	}
	if len(dst) == 0 {
		return nil
	}
	entries := make([]patch.ObjEntry, 0, len(dst))
	for _, k := range utils.SortedKeys(dst) {
		entries = append(entries, patch.ObjEntry{Key: k, Val: d.b.JSON(dst[k])})
	}
	d.b.InsObj(obj, entries)
	return nil
}

// scalarRoot covers root objects where only constant values change or
// get added.
func (d *differ) scalarRoot() error {
	src, dst, obj, ok := d.rootMaps()
	if !ok || len(src) == 0 {
		return errRefuse
	}
	for k := range src {
		if _, ok := dst[k]; !ok {
			return errRefuse
		}
	}
	var entries []patch.ObjEntry
	for _, k := range utils.SortedKeys(dst) {
		v := dst[k]
		if old, ok := src[k]; ok && protocol.Equal(old, v) {
			continue
		}
		if !protocol.IsScalar(v) {
			return errRefuse
		}
		entries = append(entries, patch.ObjEntry{Key: k, Val: d.b.Con(v)})
	}
	d.b.InsObj(obj.ID(), entries)
	return nil
}

// genericRoot rewrites changed root keys with fresh subtrees. Keys whose
// old and new values could be edited in place are left to deeper layers.
func (d *differ) genericRoot() error {
	src, dst, obj, ok := d.rootMaps()
	if !ok {
		return errRefuse
	}
	for k, v := range dst {
		if old, ok := src[k]; ok && !protocol.Equal(old, v) && sameShape(old, v) {
			return errRefuse
		}
	}
	entries := d.deletions(src, dst)
	for _, k := range utils.SortedKeys(dst) {
		v := dst[k]
		if old, ok := src[k]; ok && protocol.Equal(old, v) {
			continue
		}
		entries = append(entries, patch.ObjEntry{Key: k, Val: d.b.JSON(v)})
	}
	d.b.InsObj(obj.ID(), entries)
	return nil
}

func (d *differ) rootMaps() (src, dst map[string]any, obj *model.ObjNode, ok bool) {
	if src, ok = d.base.(map[string]any); !ok {
		return
	}
	if dst, ok = d.target.(map[string]any); !ok {
		return
	}
	obj, ok = d.rootObj()
	return
}

// deletions writes undefined over source keys missing from dst, in key
// order.
func (d *differ) deletions(src, dst map[string]any) []patch.ObjEntry {
	var entries []patch.ObjEntry
	for _, k := range utils.SortedKeys(src) {
		if _, ok := dst[k]; !ok {
			entries = append(entries, patch.ObjEntry{Key: k, Val: d.b.Con(protocol.Undefined)})
		}
	}
	return entries
}

// replace swaps the whole document for a fresh one.
func (d *differ) replace() error {
	d.b.Root(d.b.JSON(d.target))
	return nil
}

func sameShape(a, b any) bool {
	switch a.(type) {
	case map[string]any:
		_, ok := b.(map[string]any)
		return ok
	case []any:
		_, ok := b.([]any)
		return ok
	case string:
		_, ok := b.(string)
		return ok
	}
	return false
}
