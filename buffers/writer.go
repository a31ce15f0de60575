// Package buffers holds the growing byte writer and the byte reader
// every codec in the module is built on. All multi-byte values are big-endian.
package buffers

import (
	"encoding/binary"
	"math"
)

const defaultAlloc = 64

// Writer appends into Buf at the write cursor X. The bytes between the
// flush cursor X0 and X are the pending output returned by Flush.
type Writer struct {
	Buf   []byte
	X     int
	X0    int
	alloc int
}

func NewWriter(alloc int) *Writer {
	if alloc <= 0 {
		alloc = defaultAlloc
	}
	return &Writer{Buf: make([]byte, alloc), alloc: alloc}
}

// EnsureCapacity guarantees at least n writable bytes after X.
// Growth keeps the pending region; already flushed bytes are dropped.
func (w *Writer) EnsureCapacity(n int) {
	if len(w.Buf)-w.X >= n {
		return
	}
	pending := w.X - w.X0
	size := w.alloc
	if size < defaultAlloc {
		size = defaultAlloc
	}
	for size < pending+n {
		size <<= 1
	}
	buf := make([]byte, size)
	copy(buf, w.Buf[w.X0:w.X])
	w.Buf = buf
	w.X0 = 0
	w.X = pending
	w.alloc = size
}

func (w *Writer) U8(v uint8) {
	w.EnsureCapacity(1)
	w.Buf[w.X] = v
	w.X++
}

func (w *Writer) U16(v uint16) {
	w.EnsureCapacity(2)
	binary.BigEndian.PutUint16(w.Buf[w.X:], v)
	w.X += 2
}

func (w *Writer) U32(v uint32) {
	w.EnsureCapacity(4)
	binary.BigEndian.PutUint32(w.Buf[w.X:], v)
	w.X += 4
}

func (w *Writer) U64(v uint64) {
	w.EnsureCapacity(8)
	binary.BigEndian.PutUint64(w.Buf[w.X:], v)
	w.X += 8
}

func (w *Writer) I8(v int8)   { w.U8(uint8(v)) }
func (w *Writer) I16(v int16) { w.U16(uint16(v)) }
func (w *Writer) I32(v int32) { w.U32(uint32(v)) }
func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// U8U16 writes an octet followed by a u16, the CBOR short header shape.
func (w *Writer) U8U16(a uint8, b uint16) {
	w.U8(a)
	w.U16(b)
}

func (w *Writer) U8U32(a uint8, b uint32) {
	w.U8(a)
	w.U32(b)
}

func (w *Writer) U8U64(a uint8, b uint64) {
	w.U8(a)
	w.U64(b)
}

func (w *Writer) Bytes(b []byte) {
	w.EnsureCapacity(len(b))
	w.X += copy(w.Buf[w.X:], b)
}

// Utf8 writes the string bytes and returns their count.
func (w *Writer) Utf8(s string) int {
	w.EnsureCapacity(len(s))
	n := copy(w.Buf[w.X:], s)
	w.X += n
	return n
}

// Move shifts the write cursor by n, which may be negative.
// Moving forward reserves the skipped bytes.
func (w *Writer) Move(n int) {
	if n > 0 {
		w.EnsureCapacity(n)
	}
	x := w.X + n
	if x < w.X0 {
		panic("buffers: cursor moved before flush point")
	}
	w.X = x
}

// Len is the size of the pending region.
func (w *Writer) Len() int {
	return w.X - w.X0
}

// Flush returns a copy of the pending region and marks it consumed.
func (w *Writer) Flush() []byte {
	out := make([]byte, w.X-w.X0)
	copy(out, w.Buf[w.X0:w.X])
	w.X0 = w.X
	return out
}

// Reset drops everything, flushed or not.
func (w *Writer) Reset() {
	w.X = 0
	w.X0 = 0
}
