package store

// Key prefixes. A document owns one key of each kind.
const (
	SnapshotPrefix = 'M'
	LogPrefix      = 'L'
)

func SnapshotKey(docID string) []byte {
	return append([]byte{SnapshotPrefix}, docID...)
}

func LogKey(docID string) []byte {
	return append([]byte{LogPrefix}, docID...)
}

// DocID extracts the document id from either key kind.
func DocID(key []byte) (string, bool) {
	if len(key) < 2 || (key[0] != SnapshotPrefix && key[0] != LogPrefix) {
		return "", false
	}
	return string(key[1:]), true
}

// PrefixRange bounds an iterator to one key kind.
func PrefixRange(prefix byte) (lower, upper []byte) {
	return []byte{prefix}, []byte{prefix + 1}
}
