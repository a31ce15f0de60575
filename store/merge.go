package store

import (
	"io"

	"github.com/cockroachdb/pebble"
)

/*
	logMerger concatenates patch-log blobs. Commit merges single-record
	logs into the 'L' key; pebble folds them oldest first, so the log
	stays in commit order without a read-modify-write.
*/
type logMerger struct {
	vals [][]byte
}

func newLogMerger(key, value []byte) (pebble.ValueMerger, error) {
	return &logMerger{vals: [][]byte{clone(value)}}, nil
}

var mergeOperator = &pebble.Merger{
	Name:  "joy.patchlog",
	Merge: newLogMerger,
}

func (a *logMerger) MergeNewer(value []byte) error {
	a.vals = append(a.vals, clone(value))
	return nil
}

func (a *logMerger) MergeOlder(value []byte) error {
	a.vals = append([][]byte{clone(value)}, a.vals...)
	return nil
}

func (a *logMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return concatLogs(a.vals), nil, nil
}

// concatLogs joins log blobs, dropping every version byte but the first.
func concatLogs(logs [][]byte) []byte {
	var out []byte
	for _, l := range logs {
		if len(l) == 0 {
			continue
		}
		if len(out) == 0 {
			out = append(out, l...)
			continue
		}
		out = append(out, l[1:]...)
	}
	return out
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
