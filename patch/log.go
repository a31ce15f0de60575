package patch

import (
	"encoding/binary"
	"fmt"

	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
)

const (
	LogVersion   = 1
	MaxPatchSize = 10 << 20
)

func logErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", joy_errors.ErrInvalidPatchLog, fmt.Sprintf(format, args...))
}

// SerializeLog frames patches as: version byte, then u32 length + patch
// for each. No patches means no bytes at all.
func SerializeLog(patches []*Patch) ([]byte, error) {
	if len(patches) == 0 {
		return nil, nil
	}
	out := []byte{LogVersion}
	for _, p := range patches {
		bin, err := Encode(p)
		if err != nil {
			return nil, err
		}
		out = AppendRecord(out, bin)
	}
	return out, nil
}

// AppendRecord adds one encoded patch to an existing log blob.
func AppendRecord(log []byte, bin []byte) []byte {
	if len(log) == 0 {
		log = []byte{LogVersion}
	}
	log = binary.BigEndian.AppendUint32(log, uint32(len(bin)))
	return append(log, bin...)
}

func AppendLog(log []byte, p *Patch) ([]byte, error) {
	bin, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return AppendRecord(log, bin), nil
}

// LogRecords splits a log blob into encoded patches without decoding them.
func LogRecords(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] != LogVersion {
		return nil, logErr("unsupported version %d", data[0])
	}
	var recs [][]byte
	off := 1
	for off < len(data) {
		if off+4 > len(data) {
			return nil, logErr("truncated length header")
		}
		n := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		if n > MaxPatchSize {
			return nil, logErr("patch size %d exceeds max", n)
		}
		if n > len(data)-off {
			return nil, logErr("truncated patch data")
		}
		recs = append(recs, data[off:off+n])
		off += n
	}
	return recs, nil
}

func DeserializeLog(data []byte) ([]*Patch, error) {
	recs, err := LogRecords(data)
	if err != nil {
		return nil, err
	}
	patches := make([]*Patch, 0, len(recs))
	for _, rec := range recs {
		p, err := Decode(rec)
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	return patches, nil
}
