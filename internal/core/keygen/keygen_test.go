package keygen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g, err := New("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrefix, g.Prefix())

	_, err = New("lower")
	assert.Error(t, err)

	_, err = New("TOOLONGPREFIX")
	assert.Error(t, err)

	_, err = New("A")
	assert.Error(t, err)
}

func TestGenerate_Format(t *testing.T) {
	g, err := New("ECL")
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		key, err := g.Generate()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(key, "ECL-"), key)
		assert.Len(t, key, len("ECL-")+BodyLength)
		assert.True(t, IsWellFormed(key), key)
	}
}

func TestGenerate_Unique(t *testing.T) {
	g, err := New("ECL")
	require.NoError(t, err)

	seen := make(map[string]struct{}, 5000)
	for i := 0; i < 5000; i++ {
		key, err := g.Generate()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
	}
}

func TestGenerate_RejectsBiasedBytes(t *testing.T) {
	// 0xFF is above the rejection threshold and must be skipped; 0x00 maps to '0', 0x25 (37) to '1'.
	src := bytes.Repeat([]byte{0xFF, 0x00, 0x25}, 64)
	g := &Generator{prefix: "T1", random: bytes.NewReader(src)}

	key, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "T1-0101010101010101", key)
}

func TestGenerate_RandomnessFailure(t *testing.T) {
	g := &Generator{prefix: "T1", random: bytes.NewReader(nil)}
	_, err := g.Generate()
	assert.Error(t, err)
}

func TestIsWellFormed(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"ECL-ABCDEFGHJKLM", true},
		{"ECL-0123456789ABCDEF", true},
		{"ECL-ABCDEFGHJKL", false},       // 11 chars
		{"ECL-0123456789ABCDEFG", false}, // 17 chars
		{"ecl-abcdefghjklm", false},      // lowercase
		{"ECL_ABCDEFGHJKLM", false},      // wrong separator
		{"UNKNOWN-KEY", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsWellFormed(tt.key), tt.key)
	}
}
