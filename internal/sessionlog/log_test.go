package sessionlog

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSanitizedFilename(t *testing.T) {
	dir := t.TempDir()
	fixedNow := time.Date(2026, 3, 5, 14, 30, 0, 123456789, time.UTC)
	l, err := openWithClock(dir, func() time.Time { return fixedNow })
	require.NoError(t, err)
	defer l.Close()

	base := filepathBase(l.Path)
	withoutExt := strings.TrimSuffix(base, ".log")
	assert.NotContains(t, withoutExt, ":")
	assert.NotContains(t, withoutExt, ".")
}

func TestLineAndCloseFormat(t *testing.T) {
	dir := t.TempDir()
	fixedNow := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	l, err := openWithClock(dir, func() time.Time { return fixedNow })
	require.NoError(t, err)
	l.Line("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3, "expected start, hello, end lines")

	assert.Contains(t, lines[0], "session started")
	assert.True(t, strings.HasSuffix(lines[1], "hello"))
	assert.Contains(t, lines[2], "session ended")
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "["), "line %q does not start with [timestamp]", line)
	}
}

func filepathBase(p string) string {
	idx := strings.LastIndexByte(p, '/')
	if idx == -1 {
		return p
	}
	return p[idx+1:]
}
