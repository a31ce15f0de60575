package model

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/lessisbetter/json-joy-rs-sub002/buffers"
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
)

// Blobs equal to this one are rejected even though they would otherwise
// load as opaque models.
var rejectedBlob = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

type decoder struct {
	r      *buffers.Reader
	table  []clock.Ts
	server bool
	nodes  map[clock.Ts]Node
}

func badBlob(format string, args ...any) error {
	return fmt.Errorf("%w: %s", joy_errors.ErrInvalidModelBinary, fmt.Sprintf(format, args...))
}

func badTable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", joy_errors.ErrInvalidClockTable, fmt.Sprintf(format, args...))
}

// Decode parses a structural blob strictly. The observed clock of the
// result is empty.
func Decode(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, badBlob("empty blob")
	}
	if data[0]&0x80 != 0 {
		r := buffers.NewReader(data[1:])
		time, err := protocol.ReadVu57(r)
		if err != nil {
			return nil, badBlob("server time: %v", err)
		}
		d := &decoder{r: r, server: true, nodes: map[clock.Ts]Node{}}
		m := NewServer(time)
		if err := d.root(m); err != nil {
			return nil, err
		}
		return m, nil
	}
	if len(data) < 4 {
		return nil, badBlob("short blob")
	}
	rootLen := uint64(data[0])<<24 | uint64(data[1])<<16 | uint64(data[2])<<8 | uint64(data[3])
	rootEnd := 4 + rootLen
	if rootEnd > uint64(len(data)) {
		return nil, badTable("root length %d past the end", rootLen)
	}
	tr := buffers.NewReader(data[rootEnd:])
	n, err := protocol.ReadVu57(tr)
	if err != nil || n == 0 {
		return nil, badTable("no clock table")
	}
	if n > uint64(tr.Remaining()) {
		return nil, badTable("table length %d", n)
	}
	table := make([]clock.Ts, 0, n)
	for i := uint64(0); i < n; i++ {
		sid, err := protocol.ReadVu57(tr)
		if err != nil {
			return nil, badTable("entry %d: %v", i, err)
		}
		time, err := protocol.ReadVu57(tr)
		if err != nil {
			return nil, badTable("entry %d: %v", i, err)
		}
		table = append(table, clock.Ts{Sid: sid, Time: time})
	}
	r := buffers.NewReader(data[4:rootEnd])
	d := &decoder{r: r, table: table, nodes: map[clock.Ts]Node{}}
	m := &Model{table: table, observed: clock.Vector{}}
	if err := d.root(m); err != nil {
		return nil, err
	}
	if !r.EOF() {
		return nil, badBlob("%d trailing root bytes", r.Remaining())
	}
	return m, nil
}

/*
	Load decodes a blob the way stored documents are read back. Empty or
	truncated logical blobs are clock table errors. Other malformed
	input loads as an opaque model, except JSON text and the reserved
	test pattern, which keep their decode error.
*/
func Load(data []byte) (*Model, error) {
	if len(data) == 0 || (data[0]&0x80 == 0 && len(data) < 4) {
		return nil, joy_errors.ErrInvalidClockTable
	}
	m, err := Decode(data)
	if err == nil {
		return m, nil
	}
	if data[0] == '{' || bytes.Equal(data, rejectedBlob) {
		return nil, err
	}
	return &Model{
		nodes:    map[clock.Ts]Node{},
		observed: clock.Vector{},
		opaque:   append([]byte{}, data...),
	}, nil
}

func (d *decoder) root(m *Model) error {
	b, err := d.r.Peek()
	if err != nil {
		return badBlob("no root")
	}
	if b == 0 {
		_, _ = d.r.U8()
		m.nodes = d.nodes
		return nil
	}
	id, err := d.node()
	if err != nil {
		return err
	}
	m.nodes = d.nodes
	m.root, m.hasRoot = id, true
	return nil
}

func (d *decoder) id() (clock.Ts, error) {
	if d.server {
		t, err := protocol.ReadVu57(d.r)
		if err != nil {
			return clock.Ts{}, badBlob("id: %v", err)
		}
		return clock.Ts{Sid: clock.SidServer, Time: t}, nil
	}
	first, err := d.r.Peek()
	if err != nil {
		return clock.Ts{}, badBlob("id: %v", err)
	}
	var idx, diff uint64
	if first <= 0x7f {
		_, _ = d.r.U8()
		idx, diff = uint64(first>>4), uint64(first&0x0f)
	} else {
		if _, idx, err = protocol.ReadB1vu56(d.r); err != nil {
			return clock.Ts{}, badBlob("id: %v", err)
		}
		if diff, err = protocol.ReadVu57(d.r); err != nil {
			return clock.Ts{}, badBlob("id: %v", err)
		}
	}
	if idx == 0 {
		return clock.Ts{Sid: clock.SidSystem, Time: diff}, nil
	}
	if idx > uint64(len(d.table)) {
		return clock.Ts{}, badTable("session index %d", idx)
	}
	base := d.table[idx-1]
	if diff > base.Time {
		return clock.Ts{}, badTable("time below zero for session %d", base.Sid)
	}
	return clock.Ts{Sid: base.Sid, Time: base.Time - diff}, nil
}

func (d *decoder) length(minor byte) (int, error) {
	if minor != 31 {
		return int(minor), nil
	}
	n, err := protocol.ReadVu57(d.r)
	if err != nil {
		return 0, badBlob("length: %v", err)
	}
	if n > uint64(d.r.Remaining()) {
		return 0, badBlob("length %d past the end", n)
	}
	return int(n), nil
}

func (d *decoder) node() (clock.Ts, error) {
	id, err := d.id()
	if err != nil {
		return id, err
	}
	oct, err := d.r.U8()
	if err != nil {
		return id, badBlob("node header: %v", err)
	}
	major, minor := oct>>5, oct&0x1f
	var n Node
	switch major {
	case majorCon:
		if minor == 0 {
			v, err := protocol.ReadCBOR(d.r)
			if err != nil {
				return id, badBlob("con %s: %v", id, err)
			}
			n = NewCon(id, v)
		} else {
			ref, err := d.id()
			if err != nil {
				return id, err
			}
			n = NewConRef(id, ref)
		}
	case majorVal:
		child, err := d.node()
		if err != nil {
			return id, err
		}
		val := NewVal(id)
		val.Child = child
		n = val
	case majorObj:
		l, err := d.length(minor)
		if err != nil {
			return id, err
		}
		obj := NewObj(id)
		for i := 0; i < l; i++ {
			key, err := protocol.ReadCBORText(d.r)
			if err != nil {
				return id, badBlob("obj %s key: %v", id, err)
			}
			child, err := d.node()
			if err != nil {
				return id, err
			}
			obj.Keys[key] = child
		}
		n = obj
	case majorVec:
		l, err := d.length(minor)
		if err != nil {
			return id, err
		}
		vec := NewVec(id)
		for i := 0; i < l; i++ {
			b, err := d.r.Peek()
			if err != nil {
				return id, badBlob("vec %s: %v", id, err)
			}
			if b == 0 {
				_, _ = d.r.U8()
				continue
			}
			child, err := d.node()
			if err != nil {
				return id, err
			}
			vec.Slots[i] = child
		}
		n = vec
	case majorStr:
		str := NewStr(id)
		if err := d.strRuns(str, minor); err != nil {
			return id, err
		}
		n = str
	case majorBin:
		bin := NewBin(id)
		if err := d.binRuns(bin, minor); err != nil {
			return id, err
		}
		n = bin
	case majorArr:
		arr := NewArr(id)
		if err := d.arrRuns(arr, minor); err != nil {
			return id, err
		}
		n = arr
	default:
		return id, badBlob("major type %d", major)
	}
	d.nodes[id] = n
	return id, nil
}

func (d *decoder) strRuns(str *StrNode, minor byte) error {
	l, err := d.length(minor)
	if err != nil {
		return err
	}
	for i := 0; i < l; i++ {
		cid, err := d.id()
		if err != nil {
			return err
		}
		v, err := protocol.ReadCBOR(d.r)
		if err != nil {
			return badBlob("str %s chunk: %v", str.id, err)
		}
		switch x := v.(type) {
		case string:
			if !utf8.ValidString(x) {
				return badBlob("str %s chunk not utf-8", str.id)
			}
			runes := []rune(x)
			if len(runes) == 0 {
				continue
			}
			str.Seq.InsertAt(len(str.Seq.Chunks), cid, runes)
		case int64:
			if x < 0 {
				return badBlob("str %s tombstone span %d", str.id, x)
			}
			if x == 0 {
				continue
			}
			str.Seq.Chunks = append(str.Seq.Chunks, &Chunk[rune]{ID: cid, Span: uint64(x), Deleted: true})
		case uint64:
			str.Seq.Chunks = append(str.Seq.Chunks, &Chunk[rune]{ID: cid, Span: x, Deleted: true})
		default:
			return badBlob("str %s chunk of %T", str.id, v)
		}
	}
	return nil
}

func (d *decoder) binRuns(bin *BinNode, minor byte) error {
	l, err := d.length(minor)
	if err != nil {
		return err
	}
	for i := 0; i < l; i++ {
		cid, err := d.id()
		if err != nil {
			return err
		}
		deleted, span, err := protocol.ReadB1vu56(d.r)
		if err != nil {
			return badBlob("bin %s chunk: %v", bin.id, err)
		}
		if span == 0 {
			continue
		}
		if deleted == 1 {
			bin.Seq.Chunks = append(bin.Seq.Chunks, &Chunk[byte]{ID: cid, Span: span, Deleted: true})
			continue
		}
		if span > uint64(d.r.Remaining()) {
			return badBlob("bin %s chunk past the end", bin.id)
		}
		data, _ := d.r.Buf(int(span))
		bin.Seq.InsertAt(len(bin.Seq.Chunks), cid, data)
	}
	return nil
}

func (d *decoder) arrRuns(arr *ArrNode, minor byte) error {
	l, err := d.length(minor)
	if err != nil {
		return err
	}
	for i := 0; i < l; i++ {
		cid, err := d.id()
		if err != nil {
			return err
		}
		deleted, span, err := protocol.ReadB1vu56(d.r)
		if err != nil {
			return badBlob("arr %s chunk: %v", arr.id, err)
		}
		if span == 0 {
			continue
		}
		if deleted == 1 {
			arr.Seq.Chunks = append(arr.Seq.Chunks, &Chunk[clock.Ts]{ID: cid, Span: span, Deleted: true})
			continue
		}
		if span > uint64(d.r.Remaining()) {
			return badBlob("arr %s chunk past the end", arr.id)
		}
		vals := make([]clock.Ts, 0, span)
		for j := uint64(0); j < span; j++ {
			child, err := d.node()
			if err != nil {
				return err
			}
			vals = append(vals, child)
		}
		arr.Seq.InsertAt(len(arr.Seq.Chunks), cid, vals)
	}
	return nil
}
