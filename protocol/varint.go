// Package protocol holds the wire primitives shared by the patch and model
// codecs: vu57 and b1vu56 varints, compact timestamps, json-pack style CBOR
// and the JSON value set the engine works with.
package protocol

import (
	"github.com/lessisbetter/json-joy-rs-sub002/buffers"
)

// WriteVu57 writes up to 57 bits, seven per byte, low groups first.
// The eighth byte, if reached, carries its eight bits raw.
func WriteVu57(w *buffers.Writer, v uint64) {
	for i := 0; i < 7; i++ {
		if v < 0x80 {
			w.U8(byte(v))
			return
		}
		w.U8(byte(v&0x7f) | 0x80)
		v >>= 7
	}
	w.U8(byte(v))
}

func ReadVu57(r *buffers.Reader) (uint64, error) {
	var v uint64
	for i := 0; i < 7; i++ {
		b, err := r.U8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	b, err := r.U8()
	if err != nil {
		return 0, err
	}
	return v | uint64(b)<<49, nil
}

// WriteB1vu56 packs a one-bit flag with up to 56 bits of payload.
// First byte: flag | continuation | six low bits.
func WriteB1vu56(w *buffers.Writer, flag byte, v uint64) {
	first := (flag&1)<<7 | byte(v&0x3f)
	v >>= 6
	if v == 0 {
		w.U8(first)
		return
	}
	w.U8(first | 0x40)
	for i := 0; i < 6; i++ {
		if v < 0x80 {
			w.U8(byte(v))
			return
		}
		w.U8(byte(v&0x7f) | 0x80)
		v >>= 7
	}
	w.U8(byte(v))
}

func ReadB1vu56(r *buffers.Reader) (flag byte, v uint64, err error) {
	first, err := r.U8()
	if err != nil {
		return 0, 0, err
	}
	flag = first >> 7
	v = uint64(first & 0x3f)
	if first&0x40 == 0 {
		return flag, v, nil
	}
	shift := uint(6)
	for i := 0; i < 6; i++ {
		b, err := r.U8()
		if err != nil {
			return 0, 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return flag, v, nil
		}
		shift += 7
	}
	b, err := r.U8()
	if err != nil {
		return 0, 0, err
	}
	return flag, v | uint64(b)<<48, nil
}
