package joy

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
)

func HexEncode(data []byte) string {
	return hex.EncodeToString(data)
}

// HexDecode accepts either case and ignores surrounding whitespace.
func HexDecode(s string) ([]byte, error) {
	data, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", joy_errors.ErrInvalidHex, err)
	}
	return data, nil
}
