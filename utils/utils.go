package utils

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unsafe"
)

func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// ParseHex decodes a hex string such as "FF 01" or "ff01" into raw bytes.
func ParseHex(s string) ([]byte, error) {
	s = strings.ToLower(strings.Join(strings.Fields(s), ""))
	s = strings.TrimPrefix(s, "0x")
	if s == "" || len(s)%2 != 0 {
		return nil, fmt.Errorf("invalid hex string: %q", s)
	}
	return hex.DecodeString(s)
}
