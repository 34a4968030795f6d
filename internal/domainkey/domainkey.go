// Package domainkey encodes canonical domain names into fixed-width 128-bit keys.
//
// A key is the domain's bytes placed left-aligned into a 16-byte buffer,
// zero-padded on the right, read as a little-endian unsigned integer. Domains
// longer than 16 bytes keep only their trailing 16 bytes, so long names that
// differ only in their leading labels share a key.
package domainkey

import (
	"bytes"
	"fmt"
	"slices"

	"lukechampine.com/uint128"
)

// Size is the width of an encoded key in bytes.
const Size = 16

// Key is a little-endian 128-bit domain key.
type Key = uint128.Uint128

// Encode maps domain to its key. Bytes are taken as-is, non-ASCII input is
// not normalized.
func Encode(domain string) Key {
	var buf [Size]byte
	b := []byte(domain)
	if len(b) > Size {
		b = b[len(b)-Size:]
	}
	copy(buf[:], b)
	return uint128.FromBytes(buf[:])
}

// Truncated reports whether Encode drops leading bytes of domain.
func Truncated(domain string) bool {
	return len(domain) > Size
}

// Decode returns the string held by k with the zero padding removed.
// For domains of at most Size bytes it inverts Encode.
func Decode(k Key) string {
	var buf [Size]byte
	k.PutBytes(buf[:])
	return string(bytes.TrimRight(buf[:], "\x00"))
}

// FromBytes reads a key from the first Size bytes of b.
func FromBytes(b []byte) Key {
	return uint128.FromBytes(b[:Size])
}

// AppendBytes appends the little-endian form of k to dst.
func AppendBytes(dst []byte, k Key) []byte {
	var buf [Size]byte
	k.PutBytes(buf[:])
	return append(dst, buf[:]...)
}

// Compare orders keys by numeric value.
func Compare(a, b Key) int {
	return a.Cmp(b)
}

// Sort sorts keys ascending.
func Sort(keys []Key) {
	slices.SortFunc(keys, Compare)
}

// IsSorted reports whether keys are in ascending order.
func IsSorted(keys []Key) bool {
	return slices.IsSortedFunc(keys, Compare)
}

// Search reports whether k is present in the ascending slice keys.
func Search(keys []Key, k Key) bool {
	_, found := slices.BinarySearchFunc(keys, k, Compare)
	return found
}

// Hex formats k as a 0x-prefixed hexadecimal number.
func Hex(k Key) string {
	if k.Hi == 0 {
		return fmt.Sprintf("0x%x", k.Lo)
	}
	return fmt.Sprintf("0x%x%016x", k.Hi, k.Lo)
}
