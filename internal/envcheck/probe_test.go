package envcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRejectsNonHTTPURL(t *testing.T) {
	err := Check(context.Background(), "/bin/sh", "ftp://example.com", false, t.TempDir())
	assert.Error(t, err)
}

func TestCheckResolvesConfiguredBinaryByAbsolutePath(t *testing.T) {
	err := Check(context.Background(), "/bin/sh", "https://example.com", false, t.TempDir())
	require.NoError(t, err)
}

func TestCheckFailsWhenBinaryUnresolvable(t *testing.T) {
	err := Check(context.Background(), "/definitely/not/a/real/binary-xyz", "https://example.com", false, t.TempDir())
	assert.Error(t, err)
}
