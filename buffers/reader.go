package buffers

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrShortRead = errors.New("buffers: unexpected end of data")

// Reader consumes a byte slice from position X.
type Reader struct {
	Data []byte
	X    int
}

func NewReader(data []byte) *Reader {
	return &Reader{Data: data}
}

func (r *Reader) EOF() bool {
	return r.X >= len(r.Data)
}

func (r *Reader) Rest() []byte {
	return r.Data[r.X:]
}

func (r *Reader) Remaining() int {
	return len(r.Data) - r.X
}

func (r *Reader) Peek() (byte, error) {
	if r.X >= len(r.Data) {
		return 0, ErrShortRead
	}
	return r.Data[r.X], nil
}

func (r *Reader) U8() (byte, error) {
	if r.X >= len(r.Data) {
		return 0, ErrShortRead
	}
	b := r.Data[r.X]
	r.X++
	return b, nil
}

// Buf returns the next n bytes without copying.
func (r *Reader) Buf(n int) ([]byte, error) {
	if n < 0 || r.X+n > len(r.Data) {
		return nil, ErrShortRead
	}
	b := r.Data[r.X : r.X+n]
	r.X += n
	return b, nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.Buf(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.Buf(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.Buf(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	return math.Float64frombits(v), err
}
