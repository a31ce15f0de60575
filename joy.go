// Package joy is the host facade over the JSON CRDT engine: create,
// diff, patch, fork, merge and (de)serialize document models.
package joy

import (
	"fmt"
	"sync"
	"time"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/diff"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

// MaxModelSize caps model blobs in both directions.
const MaxModelSize = 10 << 20

var (
	logMu  sync.RWMutex
	logger utils.Logger = utils.NopLogger{}
)

func SetLogger(l utils.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	if l == nil {
		l = utils.NopLogger{}
	}
	logger = l
}

func log() utils.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

func ValidSessionID(sid uint64) bool {
	return clock.ValidSessionID(sid)
}

// CreateModel builds a model for session sid whose view is data.
func CreateModel(data any, sid uint64) (*model.Model, error) {
	if !clock.ValidSessionID(sid) {
		return nil, fmt.Errorf("%w: %d", joy_errors.ErrInvalidSessionID, sid)
	}
	v, err := protocol.Normalize(data)
	if err != nil || v == protocol.Undefined {
		return nil, fmt.Errorf("%w: initial value", joy_errors.ErrUnsupportedShape)
	}
	m := model.New(sid)
	b := patch.NewBuilder(m.Clock(sid))
	b.Root(b.JSON(v))
	if err := apply(m, b.Flush()); err != nil {
		return nil, err
	}
	log().Debug("model created", "sid", sid, "nodes", m.Size())
	return m, nil
}

// DiffModel returns the patch moving m to target, nil when nothing
// changes. The patch is not applied.
func DiffModel(m *model.Model, target any) (*patch.Patch, error) {
	start := time.Now()
	p, layer, err := diff.Diff(m, target, m.Sid())
	DiffDuration.Observe(float64(time.Since(start).Microseconds()))
	if err != nil {
		DiffLayers.WithLabelValues("unsupported").Inc()
		log().Warn("diff failed", "sid", m.Sid(), "err", err)
		return nil, err
	}
	DiffLayers.WithLabelValues(string(layer)).Inc()
	return p, nil
}

// ApplyPatch decodes a binary patch and applies it to m.
func ApplyPatch(m *model.Model, data []byte) error {
	p, err := patch.Decode(data)
	if err != nil {
		return err
	}
	return apply(m, p)
}

func apply(m *model.Model, p *patch.Patch) error {
	if err := m.Apply(p); err != nil {
		ApplyFailures.Inc()
		log().Warn("patch rejected", "patch", p.ID.String(), "err", err)
		return err
	}
	for i := range p.Ops {
		ApplyOps.WithLabelValues(p.Ops[i].Code.String()).Inc()
	}
	return nil
}

// ForkModel copies m for another session, a fresh random one when sid
// is nil.
func ForkModel(m *model.Model, sid *uint64) (*model.Model, error) {
	s := GenerateSessionID()
	if sid != nil {
		s = *sid
	}
	if !clock.ValidSessionID(s) {
		return nil, fmt.Errorf("%w: %d", joy_errors.ErrInvalidSessionID, s)
	}
	return m.Fork(s)
}

/*
	Merge applies pending binary patches in timestamp order. Empty
	patches are skipped. The first failing patch stops the merge; the
	ones before it stay applied.
*/
func Merge(m *model.Model, patches [][]byte) error {
	h := utils.NewHeap(func(a, b *patch.Patch) bool { return a.ID.Less(b.ID) })
	for _, data := range patches {
		if len(data) == 0 {
			continue
		}
		p, err := patch.Decode(data)
		if err != nil {
			return err
		}
		if p.Empty() {
			continue
		}
		h.Push(p)
	}
	for h.Len() > 0 {
		if err := apply(m, h.Pop()); err != nil {
			return err
		}
	}
	return nil
}

func ViewModel(m *model.Model) any {
	return m.View()
}

func ModelToBinary(m *model.Model) ([]byte, error) {
	data, err := m.Encode()
	if err != nil {
		return nil, err
	}
	if len(data) > MaxModelSize {
		return nil, fmt.Errorf("%w: %d bytes", joy_errors.ErrModelBinaryTooLarge, len(data))
	}
	return data, nil
}

// ModelFromBinary loads a blob written by ModelToBinary.
func ModelFromBinary(data []byte) (*model.Model, error) {
	if len(data) > MaxModelSize {
		return nil, fmt.Errorf("%w: %d bytes", joy_errors.ErrModelBinaryTooLarge, len(data))
	}
	return model.Load(data)
}

// ModelLoad loads a blob and makes sid its local session.
func ModelLoad(data []byte, sid uint64) (*model.Model, error) {
	if !clock.ValidSessionID(sid) {
		return nil, fmt.Errorf("%w: %d", joy_errors.ErrInvalidSessionID, sid)
	}
	m, err := ModelFromBinary(data)
	if err != nil {
		return nil, err
	}
	if m.Opaque() || m.Server() || m.Sid() == sid {
		return m, nil
	}
	return m.Fork(sid)
}
