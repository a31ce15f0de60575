package protocol

import (
	"github.com/lessisbetter/json-joy-rs-sub002/buffers"
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
)

// WriteID writes ts relative to the patch session: the time alone when
// the session matches, the time and the session otherwise.
func WriteID(w *buffers.Writer, patchSid uint64, ts clock.Ts) {
	if ts.Sid == patchSid {
		WriteB1vu56(w, 0, ts.Time)
		return
	}
	WriteB1vu56(w, 1, ts.Time)
	WriteVu57(w, ts.Sid)
}

func ReadID(r *buffers.Reader, patchSid uint64) (clock.Ts, error) {
	flag, time, err := ReadB1vu56(r)
	if err != nil {
		return clock.Ts{}, err
	}
	if flag == 0 {
		return clock.Ts{Sid: patchSid, Time: time}, nil
	}
	sid, err := ReadVu57(r)
	if err != nil {
		return clock.Ts{}, err
	}
	return clock.Ts{Sid: sid, Time: time}, nil
}
