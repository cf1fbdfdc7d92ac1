package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeKey_RoundTrip(t *testing.T) {
	key, err := CompositeKey("owner~farm", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", "farm123")
	require.NoError(t, err)

	objectType, attrs := SplitCompositeKey(key)
	assert.Equal(t, "owner~farm", objectType)
	assert.Equal(t, []string{"ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", "farm123"}, attrs)
}

func TestCompositeKey_PrefixDoesNotBleed(t *testing.T) {
	short, err := CompositeKey("shipment~test", "ship1")
	require.NoError(t, err)
	long, err := CompositeKey("shipment~test", "ship10", "t1")
	require.NoError(t, err)

	assert.False(t, strings.HasPrefix(long, short))
}

func TestCompositeKey_RejectsSeparator(t *testing.T) {
	_, err := CompositeKey("farm", "bad\x1fid")
	assert.ErrorIs(t, err, ErrInvalidKeyPart)
}

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", ""},
		{"farm\x1f", "farm\x20"},
		{"a", "b"},
		{"a\xff", "b"},
		{"\xff\xff", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PrefixEnd(tt.prefix), "prefix %q", tt.prefix)
	}
}
