package clock

// Clock hands out timestamps for a patch builder.
type Clock interface {
	Sid() uint64
	// Now is the next timestamp Tick would return.
	Now() Ts
	// Tick reserves span timestamps, returns the first one.
	Tick(span uint64) Ts
	// Observe moves the clock past a foreign span.
	Observe(ts Ts, span uint64)
}

type LogicalClock struct {
	Session uint64
	Time    uint64
}

func NewLogicalClock(sid, time uint64) *LogicalClock {
	return &LogicalClock{Session: sid, Time: time}
}

func (c *LogicalClock) Sid() uint64 {
	return c.Session
}

func (c *LogicalClock) Now() Ts {
	return Ts{c.Session, c.Time}
}

func (c *LogicalClock) Tick(span uint64) Ts {
	ts := Ts{c.Session, c.Time}
	c.Time += span
	return ts
}

func (c *LogicalClock) Observe(ts Ts, span uint64) {
	if end := ts.Time + span; end > c.Time {
		c.Time = end
	}
}

// ServerClock is a logical clock pinned to the server session.
type ServerClock struct {
	Time uint64
}

func NewServerClock(time uint64) *ServerClock {
	return &ServerClock{Time: time}
}

func (c *ServerClock) Sid() uint64 {
	return SidServer
}

func (c *ServerClock) Now() Ts {
	return Ts{SidServer, c.Time}
}

func (c *ServerClock) Tick(span uint64) Ts {
	ts := Ts{SidServer, c.Time}
	c.Time += span
	return ts
}

func (c *ServerClock) Observe(ts Ts, span uint64) {
	if end := ts.Time + span; end > c.Time {
		c.Time = end
	}
}
