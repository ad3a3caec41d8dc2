// Package keycodec converts raw key bytes to and from the canonical token
// form used in notification topics and the observation registry. The
// canonical form is upper-case hex so arbitrary key bytes survive topic
// segment restrictions.
package keycodec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Encode returns the canonical token for raw key bytes.
func Encode(key []byte) string {
	return strings.ToUpper(hex.EncodeToString(key))
}

// Decode recovers raw key bytes from a token. It accepts either hex case.
func Decode(token string) ([]byte, error) {
	key, err := hex.DecodeString(strings.ToLower(token))
	if err != nil {
		return nil, fmt.Errorf("keycodec: malformed key token %q: %w", token, err)
	}
	return key, nil
}
