package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubprocessReturnsTrimmedStdout(t *testing.T) {
	resolve := Subprocess("/bin/sh", "-c", "printf '  abc-123  \\n'")
	got, err := resolve(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", got)
}

func TestSubprocessFailsOnNonZeroExit(t *testing.T) {
	resolve := Subprocess("/bin/sh", "-c", "exit 1")
	_, err := resolve(context.Background(), "https://example.com")
	assert.Error(t, err)
}
