package model

import (
	"fmt"

	"github.com/lessisbetter/json-joy-rs-sub002/buffers"
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

/*
	Structural blob, logical clock:

	u32 root length, root, vu57 table length, (vu57 sid, vu57 time)*

	Server clock: 0x80, vu57 server time, root. A root of a single 0
	byte means no root. Every node is id, (major<<5 | minor), payload;
	minor 31 means the length follows as vu57.
*/
const (
	majorCon = 0
	majorVal = 1
	majorObj = 2
	majorVec = 3
	majorStr = 4
	majorBin = 5
	majorArr = 6
)

// tableEncoder numbers sessions in the order ids are met. Session index
// 0 is reserved for the system session; table entries start at 1.
type tableEncoder struct {
	localTime uint64
	peers     map[uint64]uint64
	bySid     map[uint64]int
	table     []clock.Ts
}

func newTableEncoder(m *Model) (*tableEncoder, error) {
	if len(m.table) == 0 {
		return nil, joy_errors.ErrInvalidClockTable
	}
	local := m.table[0]
	e := &tableEncoder{
		localTime: local.Time + 1,
		peers:     map[uint64]uint64{},
		bySid:     map[uint64]int{local.Sid: 0},
	}
	for _, p := range m.table[1:] {
		if p.Time >= e.peers[p.Sid] {
			e.peers[p.Sid] = p.Time
		}
	}
	for sid, end := range m.observed {
		if sid != local.Sid && end >= e.peers[sid] {
			e.peers[sid] = end
		}
		if end >= e.localTime {
			e.localTime = end + 1
		}
	}
	e.table = []clock.Ts{{Sid: local.Sid, Time: e.localTime - 1}}
	return e, nil
}

func (e *tableEncoder) index(ts clock.Ts) (idx uint64, diff uint64, err error) {
	i, ok := e.bySid[ts.Sid]
	if !ok {
		base, known := e.peers[ts.Sid]
		if !known {
			base = e.localTime - 1
		}
		i = len(e.table)
		e.bySid[ts.Sid] = i
		e.table = append(e.table, clock.Ts{Sid: ts.Sid, Time: base})
	}
	base := e.table[i].Time
	if ts.Time > base {
		return 0, 0, joy_errors.ErrInvalidClockTable
	}
	return uint64(i) + 1, base - ts.Time, nil
}

type encoder struct {
	m     *Model
	w     *buffers.Writer
	table *tableEncoder
}

// Encode writes the structural blob. Opaque models return their bytes.
func (m *Model) Encode() ([]byte, error) {
	if m.opaque != nil {
		return append([]byte{}, m.opaque...), nil
	}
	if m.server {
		w := buffers.NewWriter(256)
		w.U8(0x80)
		protocol.WriteVu57(w, m.serverTime)
		e := &encoder{m: m, w: w}
		if err := e.root(); err != nil {
			return nil, err
		}
		return w.Flush(), nil
	}
	table, err := newTableEncoder(m)
	if err != nil {
		return nil, err
	}
	w := buffers.NewWriter(256)
	w.Move(4)
	e := &encoder{m: m, w: w, table: table}
	if err := e.root(); err != nil {
		return nil, err
	}
	rootLen := w.Len() - 4
	end := w.X
	w.X = w.X0
	w.U32(uint32(rootLen))
	w.X = end
	protocol.WriteVu57(w, uint64(len(table.table)))
	for _, t := range table.table {
		protocol.WriteVu57(w, t.Sid)
		protocol.WriteVu57(w, t.Time)
	}
	return w.Flush(), nil
}

func (e *encoder) root() error {
	if !e.m.hasRoot {
		e.w.U8(0)
		return nil
	}
	return e.node(e.m.root)
}

func (e *encoder) id(ts clock.Ts) error {
	if e.table == nil {
		protocol.WriteVu57(e.w, ts.Time)
		return nil
	}
	idx, diff, err := e.table.index(ts)
	if err != nil {
		return err
	}
	if idx <= 7 && diff <= 15 {
		e.w.U8(byte(idx)<<4 | byte(diff))
		return nil
	}
	protocol.WriteB1vu56(e.w, 1, idx)
	protocol.WriteVu57(e.w, diff)
	return nil
}

func (e *encoder) head(major byte, n int) {
	if n < 31 {
		e.w.U8(major<<5 | byte(n))
		return
	}
	e.w.U8(major<<5 | 31)
	protocol.WriteVu57(e.w, uint64(n))
}

func (e *encoder) node(id clock.Ts) error {
	n, ok := e.m.nodes[id]
	if !ok {
		return fmt.Errorf("%w: missing node %s", joy_errors.ErrInvalidModelBinary, id)
	}
	if err := e.id(id); err != nil {
		return err
	}
	switch x := n.(type) {
	case *ConNode:
		if x.IsRef {
			e.w.U8(1)
			return e.id(x.Ref)
		}
		e.w.U8(0)
		if err := protocol.WriteCBOR(e.w, x.Value); err != nil {
			return fmt.Errorf("%w: %v", joy_errors.ErrInvalidModelBinary, err)
		}
	case *ValNode:
		e.w.U8(majorVal << 5)
		return e.node(x.Child)
	case *ObjNode:
		e.head(majorObj, len(x.Keys))
		for _, k := range utils.SortedKeys(x.Keys) {
			protocol.WriteCBORText(e.w, k)
			if err := e.node(x.Keys[k]); err != nil {
				return err
			}
		}
	case *VecNode:
		n := x.Width()
		e.head(majorVec, n)
		for i := 0; i < n; i++ {
			child, ok := x.Slots[i]
			if !ok {
				e.w.U8(0)
				continue
			}
			if err := e.node(child); err != nil {
				return err
			}
		}
	case *StrNode:
		runs := x.Seq.Runs()
		e.head(majorStr, len(runs))
		for _, r := range runs {
			if err := e.id(r.ID); err != nil {
				return err
			}
			if r.Deleted {
				protocol.WriteCBORHead(e.w, 0, r.Span)
			} else {
				protocol.WriteCBORText(e.w, string(r.Data))
			}
		}
	case *BinNode:
		runs := x.Seq.Runs()
		e.head(majorBin, len(runs))
		for _, r := range runs {
			if err := e.id(r.ID); err != nil {
				return err
			}
			if r.Deleted {
				protocol.WriteB1vu56(e.w, 1, r.Span)
			} else {
				protocol.WriteB1vu56(e.w, 0, r.Span)
				e.w.Bytes(r.Data)
			}
		}
	case *ArrNode:
		runs := x.Seq.Runs()
		e.head(majorArr, len(runs))
		for _, r := range runs {
			if err := e.id(r.ID); err != nil {
				return err
			}
			if r.Deleted {
				protocol.WriteB1vu56(e.w, 1, r.Span)
				continue
			}
			protocol.WriteB1vu56(e.w, 0, r.Span)
			for _, child := range r.Data {
				if err := e.node(child); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
