package model

import (
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
)

/*
	Chunk is a run of Span items with consecutive timestamps starting at
	ID. A deleted chunk keeps ID and Span, it stays an insertion anchor,
	but drops Data.
*/
type Chunk[T any] struct {
	ID      clock.Ts
	Span    uint64
	Deleted bool
	Data    []T
}

// Item is one live element with its own timestamp.
type Item[T any] struct {
	ID    clock.Ts
	Value T
}

// RGA is a replicated growable array. Chunks are kept in document order.
type RGA[T any] struct {
	Chunks []*Chunk[T]
}

func (r *RGA[T]) Clone() RGA[T] {
	c := RGA[T]{Chunks: make([]*Chunk[T], len(r.Chunks))}
	for i, ch := range r.Chunks {
		cp := *ch
		cp.Data = append([]T(nil), ch.Data...)
		c.Chunks[i] = &cp
	}
	return c
}

func (c *Chunk[T]) contains(ts clock.Ts) bool {
	return ts.Sid == c.ID.Sid && ts.Time >= c.ID.Time && ts.Time < c.ID.Time+c.Span
}

// Find locates the chunk and in-chunk offset of an item.
func (r *RGA[T]) Find(ts clock.Ts) (ci int, off uint64, ok bool) {
	for i, c := range r.Chunks {
		if c.contains(ts) {
			return i, ts.Time - c.ID.Time, true
		}
	}
	return -1, 0, false
}

func (r *RGA[T]) Has(ts clock.Ts) bool {
	_, _, ok := r.Find(ts)
	return ok
}

// Split cuts chunk ci so that its first off items stay in place and the
// rest become a new chunk right after it.
func (r *RGA[T]) Split(ci int, off uint64) {
	c := r.Chunks[ci]
	if off == 0 || off >= c.Span {
		panic("rga: split offset out of range")
	}
	tail := &Chunk[T]{
		ID:      c.ID.Tick(off),
		Span:    c.Span - off,
		Deleted: c.Deleted,
	}
	if !c.Deleted {
		tail.Data = append([]T(nil), c.Data[off:]...)
		c.Data = c.Data[:off:off]
	}
	c.Span = off
	r.insertAt(ci+1, tail)
}

func (r *RGA[T]) insertAt(i int, c *Chunk[T]) {
	r.Chunks = append(r.Chunks, nil)
	copy(r.Chunks[i+1:], r.Chunks[i:])
	r.Chunks[i] = c
}

// next is the position of the item right after (ci, off); ci == -1 is
// the head before the first item.
func (r *RGA[T]) next(ci int, off uint64) (int, uint64, bool) {
	if ci >= 0 && off+1 < r.Chunks[ci].Span {
		return ci, off + 1, true
	}
	if ci+1 < len(r.Chunks) {
		return ci + 1, 0, true
	}
	return 0, 0, false
}

/*
	Insert places data with ids id, id+1, ... after the item ref, or at
	the head when ref is the container id. Concurrent inserts at one
	anchor are ordered with higher timestamps first. Returns the chunk
	index used, ok is false when ref is unknown or id already present.
*/
func (r *RGA[T]) Insert(container, ref, id clock.Ts, data []T) (int, bool) {
	if len(data) == 0 || r.Has(id) {
		return -1, false
	}
	ci, off := -1, uint64(0)
	if ref != container {
		var ok bool
		if ci, off, ok = r.Find(ref); !ok {
			return -1, false
		}
	}
	for {
		ni, noff, ok := r.next(ci, off)
		if !ok {
			break
		}
		rid := r.Chunks[ni].ID.Tick(noff)
		cmp := clock.Compare(rid, id)
		if cmp == 0 {
			return -1, false
		}
		if cmp < 0 {
			break
		}
		ci, off = ni, noff
	}
	pos := 0
	if ci >= 0 {
		if off+1 < r.Chunks[ci].Span {
			r.Split(ci, off+1)
		}
		pos = ci + 1
	}
	r.insertAt(pos, &Chunk[T]{ID: id, Span: uint64(len(data)), Data: append([]T(nil), data...)})
	return pos, true
}

// InsertAt puts a chunk at a known index, used for the later runs of a
// partially accepted insert.
func (r *RGA[T]) InsertAt(pos int, id clock.Ts, data []T) {
	r.insertAt(pos, &Chunk[T]{ID: id, Span: uint64(len(data)), Data: append([]T(nil), data...)})
}

// Delete tombstones every item covered by the spans.
func (r *RGA[T]) Delete(spans []clock.Tss) {
	for _, s := range spans {
		if s.Span == 0 {
			continue
		}
		start, end := s.Time, s.Time+s.Span
		for i := 0; i < len(r.Chunks); i++ {
			c := r.Chunks[i]
			if c.ID.Sid != s.Sid {
				continue
			}
			cs, ce := c.ID.Time, c.ID.Time+c.Span
			if end <= cs || start >= ce {
				continue
			}
			if start > cs {
				r.Split(i, start-cs)
				continue
			}
			if end < ce {
				r.Split(i, end-cs)
			}
			c.Deleted = true
			c.Data = nil
		}
	}
}

// Get returns the live item with the given id.
func (r *RGA[T]) Get(ts clock.Ts) (*T, bool) {
	ci, off, ok := r.Find(ts)
	if !ok || r.Chunks[ci].Deleted {
		return nil, false
	}
	return &r.Chunks[ci].Data[off], true
}

// Update overwrites a live item, false when the item is gone.
func (r *RGA[T]) Update(ts clock.Ts, v T) bool {
	p, ok := r.Get(ts)
	if ok {
		*p = v
	}
	return ok
}

// Len counts live items.
func (r *RGA[T]) Len() (n int) {
	for _, c := range r.Chunks {
		if !c.Deleted {
			n += len(c.Data)
		}
	}
	return
}

// Live returns the live items in order.
func (r *RGA[T]) Live() []T {
	out := make([]T, 0, r.Len())
	for _, c := range r.Chunks {
		if !c.Deleted {
			out = append(out, c.Data...)
		}
	}
	return out
}

func (r *RGA[T]) Items() []Item[T] {
	out := make([]Item[T], 0, r.Len())
	for _, c := range r.Chunks {
		if c.Deleted {
			continue
		}
		for i, v := range c.Data {
			out = append(out, Item[T]{ID: c.ID.Tick(uint64(i)), Value: v})
		}
	}
	return out
}

// LastID is the id of the last chunk, ORIGIN when empty.
func (r *RGA[T]) LastID() clock.Ts {
	if len(r.Chunks) == 0 {
		return clock.Origin
	}
	return r.Chunks[len(r.Chunks)-1].ID
}

/*
	Runs groups adjacent chunks for encoding: same session, same
	deleted state and ascending contiguous times merge into one run.
*/
func (r *RGA[T]) Runs() []Chunk[T] {
	var out []Chunk[T]
	for _, c := range r.Chunks {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.ID.Sid == c.ID.Sid && last.Deleted == c.Deleted && last.ID.Time+last.Span == c.ID.Time {
				last.Span += c.Span
				if !c.Deleted {
					last.Data = append(last.Data, c.Data...)
				}
				continue
			}
		}
		run := Chunk[T]{ID: c.ID, Span: c.Span, Deleted: c.Deleted}
		if !c.Deleted {
			run.Data = append([]T(nil), c.Data...)
		}
		out = append(out, run)
	}
	return out
}
