package clock

import "github.com/lessisbetter/json-joy-rs-sub002/utils"

// Vector is the highest observed time per session.
type Vector map[uint64]uint64

// Observe folds the span [ts.Time, ts.Time+span) into the vector,
// returns whether it moved anything.
func (v Vector) Observe(ts Ts, span uint64) bool {
	if span == 0 {
		span = 1
	}
	end := ts.Time + span - 1
	pre, ok := v[ts.Sid]
	if ok && pre >= end {
		return false
	}
	v[ts.Sid] = end
	return true
}

func (v Vector) Get(sid uint64) (time uint64, ok bool) {
	time, ok = v[sid]
	return
}

// Max is the highest time over all sessions.
func (v Vector) Max() (max uint64) {
	for _, t := range v {
		if t > max {
			max = t
		}
	}
	return
}

func (v Vector) Sids() []uint64 {
	return utils.SortedKeys(v)
}

// Seen reports whether ts is covered by the vector.
func (v Vector) Seen(ts Ts) bool {
	t, ok := v[ts.Sid]
	return ok && t >= ts.Time
}

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	for sid, t := range v {
		c[sid] = t
	}
	return c
}
