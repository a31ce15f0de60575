package patch

import (
	"errors"
	"strings"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
)

var (
	ErrSidMismatch       = errors.New("patch: session mismatch")
	ErrTimestampConflict = errors.New("patch: overlapping timestamps")
)

// Patch is an ordered run of operations from one session. Op ids are
// contiguous starting at ID.
type Patch struct {
	ID   clock.Ts
	Meta any
	Ops  []Op
}

func (p *Patch) Span() (span uint64) {
	for i := range p.Ops {
		span += p.Ops[i].Span()
	}
	return
}

// NextTime is the time the op after the last one would get.
func (p *Patch) NextTime() uint64 {
	return p.ID.Time + p.Span()
}

func (p *Patch) Empty() bool {
	return len(p.Ops) == 0
}

// Renumber restamps the op ids from ID onward.
func (p *Patch) Renumber() {
	t := p.ID
	for i := range p.Ops {
		p.Ops[i].ID = t
		t = t.Tick(p.Ops[i].Span())
	}
}

func (p *Patch) Clone() *Patch {
	c := &Patch{ID: p.ID, Meta: p.Meta, Ops: make([]Op, len(p.Ops))}
	for i := range p.Ops {
		c.Ops[i] = p.Ops[i].Clone()
	}
	return c
}

/*
	Rebase moves the patch to start at time. Timestamps that point into
	the patch itself shift with it; references to anything older stay.
*/
func (p *Patch) Rebase(time uint64) *Patch {
	c := p.Clone()
	if time == p.ID.Time {
		return c
	}
	sid, lo, hi := p.ID.Sid, p.ID.Time, p.NextTime()
	shift := func(ts clock.Ts) clock.Ts {
		if ts.Sid == sid && ts.Time >= lo && ts.Time < hi {
			return clock.Ts{Sid: sid, Time: ts.Time - lo + time}
		}
		return ts
	}
	c.ID.Time = time
	for i := range c.Ops {
		op := &c.Ops[i]
		op.Obj = shift(op.Obj)
		op.Ref = shift(op.Ref)
		op.Val = shift(op.Val)
		for j := range op.Keys {
			op.Keys[j].Val = shift(op.Keys[j].Val)
		}
		for j := range op.Slots {
			op.Slots[j].Val = shift(op.Slots[j].Val)
		}
		for j := range op.Vals {
			op.Vals[j] = shift(op.Vals[j])
		}
		for j := range op.Spans {
			s := shift(op.Spans[j].Ts())
			op.Spans[j].Sid, op.Spans[j].Time = s.Sid, s.Time
		}
	}
	c.Renumber()
	return c
}

/*
	Combine glues patches of one session into one. Gaps between them are
	filled with nop, overlaps are an error. Empty patches are skipped.
*/
func Combine(patches []*Patch) (*Patch, error) {
	var out *Patch
	for _, p := range patches {
		if p == nil || p.Empty() {
			continue
		}
		if out == nil {
			out = p.Clone()
			continue
		}
		if p.ID.Sid != out.ID.Sid {
			return nil, ErrSidMismatch
		}
		next := out.NextTime()
		if p.ID.Time < next {
			return nil, ErrTimestampConflict
		}
		if gap := p.ID.Time - next; gap > 0 {
			out.Ops = append(out.Ops, Op{Code: OpNop, ID: clock.Ts{Sid: out.ID.Sid, Time: next}, Len: gap})
		}
		for i := range p.Ops {
			out.Ops = append(out.Ops, p.Ops[i].Clone())
		}
	}
	if out == nil {
		return &Patch{}, nil
	}
	return out, nil
}

/*
	Compact merges runs of ins_str ops typed one after another: an op
	whose id follows the previous op and which inserts right after the
	previous op's last character in the same string is folded into it.
	Op ids and the patch span are unchanged. The patch is modified in
	place and returned.
*/
func Compact(p *Patch) *Patch {
	if len(p.Ops) < 2 {
		return p
	}
	ops := p.Ops[:1]
	for _, op := range p.Ops[1:] {
		last := &ops[len(ops)-1]
		if appends(last, &op) {
			last.Text += op.Text
			continue
		}
		ops = append(ops, op)
	}
	p.Ops = ops
	return p
}

func appends(last, op *Op) bool {
	if last.Code != OpInsStr || op.Code != OpInsStr || last.Obj != op.Obj {
		return false
	}
	next := last.ID.Time + last.Span()
	return next == op.ID.Time &&
		op.ID.Sid == last.ID.Sid &&
		op.Ref.Sid == last.ID.Sid &&
		op.Ref.Time+1 == next
}

func (p *Patch) String() string {
	var b strings.Builder
	b.WriteString("patch ")
	b.WriteString(p.ID.String())
	for i := range p.Ops {
		b.WriteString("\n  ")
		b.WriteString(p.Ops[i].String())
	}
	return b.String()
}
