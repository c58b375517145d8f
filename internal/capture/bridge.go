// Package capture implements the two-stage capture bridge: fetching and
// in-page injection of a third-party capture script, a fetch interposer
// that routes the script's own submissions back through the host, and a
// popup/navigation observer that watches for the capture result URL.
//
// The chromedp wiring (Evaluate with awaited promises for in-page fetches,
// ListenTarget for target-creation events) follows the pattern the pack's
// own chromedp-based browser test harness uses to drive a page and observe
// its targets from the host side.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"walletbridge/internal/bridgeerr"
	"walletbridge/internal/log"
)

// Event is one observable occurrence the bridge reports for the surrounding
// workflow or audit trail to record. Kind is one of the capture: event
// names; Data carries the associated payload.
type Event struct {
	Kind string
	Data string
}

var figmaURLPattern = regexp.MustCompile(`https?://(www\.)?figma\.com/\S+`)

// InjectResult is the outcome of Stage B (toolbar injection).
type InjectResult struct {
	Success bool
	Error   string
}

// Bridge owns the script URL and the event stream produced by submissions
// and popup observation. The capture submit base URL is passed to Inject.
type Bridge struct {
	ScriptURL string
	Events    chan Event

	interposerInstalled bool
}

// NewBridge constructs a Bridge for the well-known capture script URL.
// Events is buffered generously; a slow consumer never blocks a submission
// (SPEC_FULL.md's audit trail policy applies the same no-backpressure rule
// here).
func NewBridge(scriptURL string) *Bridge {
	return &Bridge{ScriptURL: scriptURL, Events: make(chan Event, 64)}
}

func (b *Bridge) emit(kind, data string) {
	select {
	case b.Events <- Event{Kind: kind, Data: data}:
	default:
		log.Capture.Warn().Str("kind", kind).Msg("capture event dropped, channel full")
	}
}

// Submit performs Stage A's submission proxy: POST body to targetURL from
// inside the page (sharing its cookie/CSP posture), emits the derived
// events, and returns the raw response text to the caller (the __submitCapture
// binding handler, which hands it back to the in-page fetch interposer).
func (b *Bridge) Submit(ctx context.Context, targetURL, body string) (string, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("capture: marshal body: %w", err)
	}
	urlJSON, err := json.Marshal(targetURL)
	if err != nil {
		return "", fmt.Errorf("capture: marshal url: %w", err)
	}

	script := fmt.Sprintf(`(async () => {
		const realFetch = window.__walletbridgeOriginalFetch || fetch;
		const resp = await realFetch(%s, {
			method: "POST",
			headers: {"Content-Type": "application/json"},
			body: %s,
		});
		return await resp.text();
	})()`, string(urlJSON), string(bodyJSON))

	var text string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &text, awaitPromise)); err != nil {
		return "", fmt.Errorf("capture: submit: %w", err)
	}

	b.emit("capture:submitted", text)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		if claimURL, ok := parsed["claimUrl"].(string); ok && claimURL != "" {
			b.emit("capture:claimUrl", claimURL)
		}
		if nextID, ok := parsed["nextCaptureId"].(string); ok && nextID != "" {
			b.emit("capture:nextId", nextID)
		}
	} else if match := figmaURLPattern.FindString(text); match != "" {
		b.emit("capture:claimUrl", match)
	}

	return text, nil
}

// ObservePopups installs a target-event listener on the browser context
// that watches every newly created page target for a figma.com URL, either
// immediately or on its next navigation, and emits capture:figmaUrl.
func (b *Bridge) ObservePopups(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *target.EventTargetCreated:
			b.checkPopupURL(e.TargetInfo.Type, e.TargetInfo.URL)
		case *target.EventTargetInfoChanged:
			b.checkPopupURL(e.TargetInfo.Type, e.TargetInfo.URL)
		}
	})
}

func (b *Bridge) checkPopupURL(targetType string, url string) {
	if targetType != "page" {
		return
	}
	if url == "" || url == "about:blank" {
		return
	}
	if figmaURLPattern.MatchString(url) {
		b.emit("capture:figmaUrl", url)
	}
}

// Inject performs Stage B: fetch the capture script through the page's own
// fetch, evaluate its text in the page, wait for it to self-initialise,
// install the fetch interposer exactly once, and fire the foreign API's
// captureForDesign call.
func (b *Bridge) Inject(ctx context.Context, captureID, submitBaseURL string) InjectResult {
	scriptText, err := b.fetchScript(ctx)
	if err != nil {
		log.Capture.Warn().Err(err).Msg("capture script fetch failed")
		return InjectResult{Success: false, Error: (&bridgeerr.ScriptFetchFailed{URL: b.ScriptURL, Err: err}).Error()}
	}

	if err := chromedp.Run(ctx, chromedp.Evaluate(scriptText, nil)); err != nil {
		return InjectResult{Success: false, Error: fmt.Sprintf("capture: evaluate script: %v", err)}
	}

	time.Sleep(time.Second)

	if !b.interposerInstalled {
		if err := chromedp.Run(ctx, chromedp.Evaluate(interposerScript, nil)); err != nil {
			return InjectResult{Success: false, Error: fmt.Sprintf("capture: install interposer: %v", err)}
		}
		b.interposerInstalled = true
	}

	endpoint := fmt.Sprintf("%s/capture/%s/submit", submitBaseURL, captureID)
	invokeJSON, err := json.Marshal(map[string]string{
		"captureId": captureID,
		"endpoint":  endpoint,
		"selector":  "body",
	})
	if err != nil {
		return InjectResult{Success: false, Error: fmt.Sprintf("capture: marshal invocation: %v", err)}
	}
	invokeScript := fmt.Sprintf(`try { captureForDesign(%s); } catch (e) { /* swallowed: in-page UI handles its own errors */ }`, string(invokeJSON))
	if err := chromedp.Run(ctx, chromedp.Evaluate(invokeScript, nil)); err != nil {
		log.Capture.Debug().Err(err).Msg("captureForDesign invocation failed (swallowed)")
	}

	return InjectResult{Success: true}
}

// fetchScript retrieves the capture script text through the page's own
// fetch so it shares the page's cookie and CSP posture.
func (b *Bridge) fetchScript(ctx context.Context) (string, error) {
	urlJSON, err := json.Marshal(b.ScriptURL)
	if err != nil {
		return "", err
	}
	script := fmt.Sprintf(`(async () => {
		const realFetch = window.__walletbridgeOriginalFetch || fetch;
		const resp = await realFetch(%s);
		if (!resp.ok) throw new Error("status " + resp.status);
		return await resp.text();
	})()`, string(urlJSON))

	var text string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &text, awaitPromise)); err != nil {
		return "", err
	}
	return text, nil
}

// interposerScript installs window.fetch wrapping, guarded by a page-global
// flag so repeated injection never double-wraps.
const interposerScript = `(() => {
  if (window.__walletbridgeFetchInstalled) return;
  window.__walletbridgeFetchInstalled = true;
  const originalFetch = window.fetch.bind(window);
  window.__walletbridgeOriginalFetch = originalFetch;
  window.fetch = async function (input, init) {
    const url = typeof input === "string" ? input : (input && input.url) || "";
    if (url.includes("mcp.figma.com")) {
      const body = (init && init.body) || "";
      const text = await window.__submitCapture(url, body);
      return new Response(text, { status: 200, headers: { "Content-Type": "application/json" } });
    }
    return originalFetch(input, init);
  };
})();`

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
