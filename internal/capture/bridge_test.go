package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitQueuesEventsInOrder(t *testing.T) {
	b := NewBridge("https://mcp.figma.com/script.js")
	b.emit("capture:submitted", `{"claimUrl":"https://figma.com/file/abc","nextCaptureId":"next-1"}`)

	ev := <-b.Events
	assert.Equal(t, "capture:submitted", ev.Kind)

	b.emit("capture:claimUrl", "https://figma.com/file/abc")
	ev = <-b.Events
	assert.Equal(t, "capture:claimUrl", ev.Kind)
}

func TestFigmaURLPatternMatchesBareURL(t *testing.T) {
	text := `some preamble https://www.figma.com/file/xyz123/My-Design trailing text`
	match := figmaURLPattern.FindString(text)
	assert.NotEmpty(t, match)
}

func TestCheckPopupURLIgnoresAboutBlankAndNonPageTargets(t *testing.T) {
	b := NewBridge("https://mcp.figma.com/script.js")
	b.checkPopupURL("page", "about:blank")
	b.checkPopupURL("background_page", "https://figma.com/file/abc")
	select {
	case ev := <-b.Events:
		t.Fatalf("unexpected event emitted: %+v", ev)
	default:
	}

	b.checkPopupURL("page", "https://figma.com/file/abc")
	select {
	case ev := <-b.Events:
		assert.Equal(t, "capture:figmaUrl", ev.Kind)
	default:
		t.Fatal("expected capture:figmaUrl event")
	}
}

func TestEventChannelDropsRatherThanBlocksWhenFull(t *testing.T) {
	b := NewBridge("https://mcp.figma.com/script.js")
	for i := 0; i < cap(b.Events)+10; i++ {
		b.emit("capture:submitted", "x")
	}
	require.Equal(t, cap(b.Events), len(b.Events), "buffer should be full, not blocked")
}

func TestInterposerGuardStartsUnsetAndRecordsInstall(t *testing.T) {
	b := NewBridge("https://mcp.figma.com/script.js")
	assert.False(t, b.interposerInstalled)
	b.interposerInstalled = true
	assert.True(t, b.interposerInstalled, "host-side guard should reflect a prior successful install")
}
