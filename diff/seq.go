package diff

import (
	"strconv"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
)

// spans packs item ids into runs of consecutive timestamps.
func spans(ids []clock.Ts) []clock.Tss {
	var out []clock.Tss
	for _, id := range ids {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Sid == id.Sid && last.Time+last.Span == id.Time {
				last.Span++
				continue
			}
		}
		out = append(out, id.Span(1))
	}
	return out
}

// middle returns the length of the common prefix and suffix of two
// sequences, the suffix not overlapping the prefix.
func middle[T comparable](src, dst []T) (pre, suf int) {
	for pre < len(src) && pre < len(dst) && src[pre] == dst[pre] {
		pre++
	}
	for suf < len(src)-pre && suf < len(dst)-pre && src[len(src)-1-suf] == dst[len(dst)-1-suf] {
		suf++
	}
	return
}

// str inserts the changed middle of the text, then deletes the old one.
func (d *differ) str(n *model.StrNode, dst string) {
	items := n.Seq.Items()
	src := make([]rune, len(items))
	for i, it := range items {
		src[i] = it.Value
	}
	want := []rune(dst)
	pre, suf := middle(src, want)
	after := n.ID()
	if pre > 0 {
		after = items[pre-1].ID
	}
	if ins := want[pre : len(want)-suf]; len(ins) > 0 {
		d.b.InsStr(n.ID(), after, string(ins))
	}
	if gone := items[pre : len(items)-suf]; len(gone) > 0 {
		ids := make([]clock.Ts, len(gone))
		for i, it := range gone {
			ids[i] = it.ID
		}
		d.b.Del(n.ID(), spans(ids))
	}
}

func (d *differ) bin(n *model.BinNode, dst []byte) {
	items := n.Seq.Items()
	src := make([]byte, len(items))
	for i, it := range items {
		src[i] = it.Value
	}
	pre, suf := middle(src, dst)
	after := n.ID()
	if pre > 0 {
		after = items[pre-1].ID
	}
	if ins := dst[pre : len(dst)-suf]; len(ins) > 0 {
		d.b.InsBin(n.ID(), after, ins)
	}
	if gone := items[pre : len(items)-suf]; len(gone) > 0 {
		ids := make([]clock.Ts, len(gone))
		for i, it := range gone {
			ids[i] = it.ID
		}
		d.b.Del(n.ID(), spans(ids))
	}
}

// binTarget reads the view form of a byte string: {"0": b0, "1": b1, ...}.
func binTarget(m map[string]any) ([]byte, bool) {
	out := make([]byte, len(m))
	for i := range out {
		v, ok := m[strconv.Itoa(i)].(int64)
		if !ok || v < 0 || v > 255 {
			return nil, false
		}
		out[i] = byte(v)
	}
	return out, true
}
