// Package clock implements logical timestamps, spans, clock vectors and
// the logical and server clocks that stamp operations.
package clock

import (
	"errors"
	"strconv"
	"strings"
)

/*
	Ts is a logical timestamp: a session id and a per-session counter.
	Timestamps order by time first and session second, so concurrent
	operations resolve the same way on every replica.

	sid 0 is the system session (ORIGIN lives there), sid 1 is the
	server clock, user sessions start at 65536.
*/
type Ts struct {
	Sid  uint64
	Time uint64
}

// Tss is a run of Span consecutive timestamps starting at (Sid, Time).
type Tss struct {
	Sid  uint64
	Time uint64
	Span uint64
}

const (
	SidSystem  = uint64(0)
	SidServer  = uint64(1)
	SidUserMin = uint64(65536)
	SidMax     = uint64(1)<<53 - 1
)

// Origin is the root register and the start of every sequence.
var Origin = Ts{}

var ErrBadTs = errors.New("clock: bad timestamp syntax")

func NewTs(sid, time uint64) Ts {
	return Ts{Sid: sid, Time: time}
}

func Compare(a, b Ts) int {
	switch {
	case a.Time < b.Time:
		return -1
	case a.Time > b.Time:
		return 1
	case a.Sid < b.Sid:
		return -1
	case a.Sid > b.Sid:
		return 1
	}
	return 0
}

func (ts Ts) Less(b Ts) bool {
	return Compare(ts, b) < 0
}

func (ts Ts) IsOrigin() bool {
	return ts == Origin
}

// Tick returns the timestamp n steps later in the same session.
func (ts Ts) Tick(n uint64) Ts {
	return Ts{ts.Sid, ts.Time + n}
}

func (ts Ts) Span(n uint64) Tss {
	return Tss{ts.Sid, ts.Time, n}
}

func (ts Ts) String() string {
	var buf [48]byte
	b := strconv.AppendUint(buf[:0], ts.Sid, 10)
	b = append(b, '.')
	b = strconv.AppendUint(b, ts.Time, 10)
	return string(b)
}

// ParseTs reads the sid.time form produced by String.
func ParseTs(s string) (Ts, error) {
	sid, time, ok := strings.Cut(s, ".")
	if !ok {
		return Ts{}, ErrBadTs
	}
	a, err := strconv.ParseUint(sid, 10, 64)
	if err != nil {
		return Ts{}, ErrBadTs
	}
	b, err := strconv.ParseUint(time, 10, 64)
	if err != nil {
		return Ts{}, ErrBadTs
	}
	return Ts{a, b}, nil
}

func (s Tss) Ts() Ts {
	return Ts{s.Sid, s.Time}
}

// Contains reports whether ts falls inside the span.
func (s Tss) Contains(ts Ts) bool {
	return ts.Sid == s.Sid && ts.Time >= s.Time && ts.Time < s.Time+s.Span
}

func (s Tss) String() string {
	return s.Ts().String() + "!" + strconv.FormatUint(s.Span, 10)
}

// ValidSessionID reports whether sid may author user patches.
func ValidSessionID(sid uint64) bool {
	return sid >= SidUserMin && sid <= SidMax
}
