package model

import (
	"sort"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
)

/*
	Model owns the node index of one document replica.

	table is the clock table the structural codec writes: entry 0 is the
	local session, the rest are peers, times are the last used ones.
	observed collects what apply has seen since the model was loaded.
	A server model has no table; serverTime is its last used time.
*/
type Model struct {
	nodes      map[clock.Ts]Node
	root       clock.Ts
	hasRoot    bool
	table      []clock.Ts
	observed   clock.Vector
	server     bool
	serverTime uint64
	opaque     []byte
}

// New makes an empty logical-clock model for session sid.
func New(sid uint64) *Model {
	return &Model{
		nodes:    map[clock.Ts]Node{},
		table:    []clock.Ts{{Sid: sid, Time: 0}},
		observed: clock.Vector{},
	}
}

// NewServer makes an empty server-clock model.
func NewServer(time uint64) *Model {
	return &Model{
		nodes:      map[clock.Ts]Node{},
		observed:   clock.Vector{},
		server:     true,
		serverTime: time,
	}
}

// Opaque reports a model decoded from a malformed blob accepted for
// compatibility. It views as null and keeps the original bytes.
func (m *Model) Opaque() bool {
	return m.opaque != nil
}

func (m *Model) Server() bool {
	return m.server
}

// Sid is the local session of the model.
func (m *Model) Sid() uint64 {
	if m.server || len(m.table) == 0 {
		return clock.SidServer
	}
	return m.table[0].Sid
}

func (m *Model) Node(id clock.Ts) (Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

func (m *Model) Size() int {
	return len(m.nodes)
}

// Root is the node the root register points at.
func (m *Model) Root() (clock.Ts, bool) {
	return m.root, m.hasRoot
}

func (m *Model) Table() []clock.Ts {
	return append([]clock.Ts(nil), m.table...)
}

func (m *Model) Observed() clock.Vector {
	return m.observed.Clone()
}

// Time is the highest time the model knows of. New ops must start after it.
func (m *Model) Time() uint64 {
	if m.server {
		return m.serverTime
	}
	var t uint64
	for _, e := range m.table {
		if e.Time > t {
			t = e.Time
		}
	}
	if o := m.observed.Max(); o > t {
		t = o
	}
	return t
}

// Clock returns a fresh clock for session sid positioned after Time.
func (m *Model) Clock(sid uint64) clock.Clock {
	if m.server {
		return clock.NewServerClock(m.serverTime + 1)
	}
	return clock.NewLogicalClock(sid, m.Time()+1)
}

func (m *Model) Clone() *Model {
	c := &Model{
		nodes:      make(map[clock.Ts]Node, len(m.nodes)),
		root:       m.root,
		hasRoot:    m.hasRoot,
		table:      append([]clock.Ts(nil), m.table...),
		observed:   m.observed.Clone(),
		server:     m.server,
		serverTime: m.serverTime,
	}
	if m.opaque != nil {
		c.opaque = append([]byte{}, m.opaque...)
	}
	for id, n := range m.nodes {
		c.nodes[id] = cloneNode(n)
	}
	return c
}

/*
	Fork makes a replica for session sid. The observed clock is folded
	into the table first; the old local session becomes a peer. Peers
	are ordered by session id. Server models fork unchanged.
*/
func (m *Model) Fork(sid uint64) (*Model, error) {
	if m.server {
		return m.Clone(), nil
	}
	if m.opaque != nil {
		return nil, joy_errors.ErrUnsupportedShape
	}
	if !clock.ValidSessionID(sid) {
		return nil, joy_errors.ErrInvalidSessionID
	}
	c := m.Clone()
	c.foldObserved()
	local := c.table[0]
	peers := map[uint64]uint64{}
	for _, p := range c.table[1:] {
		if p.Time >= peers[p.Sid] {
			peers[p.Sid] = p.Time
		}
	}
	if local.Sid != sid && local.Time >= peers[local.Sid] {
		peers[local.Sid] = local.Time
	}
	delete(peers, sid)
	table := []clock.Ts{{Sid: sid, Time: local.Time}}
	for psid, t := range peers {
		table = append(table, clock.Ts{Sid: psid, Time: t})
	}
	sort.Slice(table[1:], func(i, j int) bool { return table[1+i].Sid < table[1+j].Sid })
	c.table = table
	c.observed = clock.Vector{}
	return c, nil
}

// foldObserved moves what apply has seen into the clock table.
func (m *Model) foldObserved() {
	if len(m.table) == 0 {
		return
	}
	for sid, end := range m.observed {
		found := false
		for i := range m.table {
			if m.table[i].Sid == sid {
				if end > m.table[i].Time {
					m.table[i].Time = end
				}
				found = true
				break
			}
		}
		if !found {
			m.table = append(m.table, clock.Ts{Sid: sid, Time: end})
		}
	}
	sort.Slice(m.table[1:], func(i, j int) bool { return m.table[1+i].Sid < m.table[1+j].Sid })
}
