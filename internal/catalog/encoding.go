package catalog

import (
	"encoding/binary"
	"math"
	"strconv"
)

const maxInt64 = math.MaxInt64

// lenString encodes s as a 4-byte big-endian length prefix followed
// by its UTF-8 bytes, per spec.md §3's "name-prefixed strings carry a
// 4-byte length".
func lenString(s string) []byte {
	buf := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(s)))
	copy(buf[4:], s)
	return buf
}

// parseLenString decodes a lenString-encoded string from the front of
// raw, returning the string and the total number of bytes consumed
// (prefix + body).
func parseLenString(raw []byte) (string, int) {
	n := binary.BigEndian.Uint32(raw[:4])
	return string(raw[4 : 4+n]), 4 + int(n)
}

func beUint64(raw []byte) uint64 {
	return binary.BigEndian.Uint64(raw[:8])
}

func beBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func formatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}
