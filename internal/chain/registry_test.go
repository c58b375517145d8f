package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByID(t *testing.T) {
	r := New()
	c, ok := r.FindByID(137)
	require.True(t, ok, "expected polygon to be registered")
	assert.Equal(t, "0x89", c.HexID)

	_, ok = r.FindByID(999999)
	assert.False(t, ok, "expected unknown chain id to be absent")
}

func TestNewCustom(t *testing.T) {
	c, err := NewCustom(31337, "Local Devnet", "http://127.0.0.1:8545")
	require.NoError(t, err)
	assert.Equal(t, "0x7a69", c.HexID)

	_, err = NewCustom(0, "", "http://x")
	assert.Error(t, err, "expected error for non-positive id")

	_, err = NewCustom(1, "", "ftp://x")
	assert.Error(t, err, "expected error for non-http(s) scheme")

	_, err = NewCustom(1, "", "not a url")
	assert.Error(t, err, "expected error for unparseable url")
}

func TestAllReturnsBuiltins(t *testing.T) {
	r := New()
	all := r.All()
	require.Len(t, all, len(builtins))
	for _, c := range all {
		assert.NotEmpty(t, c.HexID, "chain %s missing hexID", c.Name)
	}
}
