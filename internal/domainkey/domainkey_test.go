package domainkey

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDeterministic(t *testing.T) {
	for _, d := range []string{"", "cn", "example.cn", "verylonglabel.example.com", "例子.中国"} {
		assert.Equal(t, Encode(d), Encode(strings.Clone(d)), d)
	}
}

func TestEncodeLayout(t *testing.T) {
	k := Encode("ab")
	// 'a' is the least significant byte
	assert.Equal(t, uint64('a')|uint64('b')<<8, k.Lo)
	assert.Zero(t, k.Hi)

	k = Encode("0123456789abcdef")
	assert.Equal(t, binary.LittleEndian.Uint64([]byte("01234567")), k.Lo)
	assert.Equal(t, binary.LittleEndian.Uint64([]byte("89abcdef")), k.Hi)
}

func TestRoundTrip(t *testing.T) {
	tests := []string{
		"a",
		"example.cn",
		"qq.com",
		"example.com.cn",
		"0123456789abcdef", // exactly 16 bytes
	}

	for _, d := range tests {
		t.Run(d, func(t *testing.T) {
			assert.False(t, Truncated(d))
			assert.Equal(t, d, Decode(Encode(d)))
		})
	}
}

func TestTruncationKeepsTrailingBytes(t *testing.T) {
	long := "verylonglabel.example.com"
	require.True(t, Truncated(long))

	tail := long[len(long)-Size:]
	assert.Equal(t, "abel.example.com", tail)
	assert.Equal(t, Encode(tail), Encode(long))
	assert.Equal(t, Encode(long), Encode("another-prefix."+tail))
	assert.Equal(t, tail, Decode(Encode(long)))
}

func TestNonASCIIBytesKept(t *testing.T) {
	d := "中国.cn"
	assert.Equal(t, d, Decode(Encode(d)))
	assert.NotEqual(t, Encode("xn--fiqs8s.cn"), Encode(d))
}

func TestBytesRoundTrip(t *testing.T) {
	k := Encode("example.com.cn")
	b := AppendBytes(nil, k)
	require.Len(t, b, Size)
	assert.Equal(t, "example.com.cn\x00\x00", string(b))
	assert.Equal(t, k, FromBytes(b))
}

func TestSortAndSearch(t *testing.T) {
	keys := []Key{Encode("zz"), Encode("b"), Encode("a.cn"), Encode("0123456789abcdefg")}
	assert.False(t, IsSorted(keys))

	Sort(keys)
	assert.True(t, IsSorted(keys))
	for i := 1; i < len(keys); i++ {
		assert.Equal(t, -1, Compare(keys[i-1], keys[i]))
	}

	assert.True(t, Search(keys, Encode("b")))
	assert.False(t, Search(keys, Encode("c")))
}

func TestHex(t *testing.T) {
	assert.Equal(t, "0x6261", Hex(Encode("ab")))
	assert.Equal(t, "0x1"+strings.Repeat("0", 16), Hex(Key{Hi: 1}))
}
