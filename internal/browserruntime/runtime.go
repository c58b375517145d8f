// Package browserruntime launches the headed browser, wires the three
// host-callable surfaces into its context before any page is created, and
// owns the browser handle's lifecycle.
//
// chromedp has no Playwright-style exposeFunction: a CDP binding
// (runtime.AddBinding) only lets the page fire a one-way, string-payload
// event at the host (Runtime.bindingCalled) — it does not hand the page a
// return value. So every host-callable surface here is really two pieces:
// a raw binding the host listens to, and a small pre-document JS wrapper
// (installed alongside the provider script) that stashes a Promise keyed
// by a request id and resolves it once the host evaluates the answer back
// into the page. This mirrors the pack's own chromedp test harness, which
// drives a page via chromedp.Run/Evaluate and observes it via
// chromedp.ListenTarget rather than any exposeFunction equivalent.
package browserruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"walletbridge/internal/bridgeerr"
	"walletbridge/internal/capture"
	"walletbridge/internal/log"
	"walletbridge/internal/provider"
	"walletbridge/internal/rpcdispatch"
)

const (
	rpcProxyBinding     = "__rpcProxyRaw"
	submitCaptureBinding = "__submitCaptureRaw"

	viewportWidth  = 1440
	viewportHeight = 900
)

// bindingWrapperScript defines the page-global window.__rpcProxy and
// window.__submitCapture functions the injected provider and capture
// interposer call directly; each stashes a Promise and forwards a JSON
// payload through the raw CDP binding, to be settled later by the host
// calling back into the page.
const bindingWrapperScript = `(() => {
  window.__rpcProxyPending = window.__rpcProxyPending || {};
  window.__rpcProxySeq = window.__rpcProxySeq || 0;
  window.__rpcProxy = function (method, params) {
    return new Promise((resolve, reject) => {
      const id = ++window.__rpcProxySeq;
      window.__rpcProxyPending[id] = { resolve, reject };
      window.` + rpcProxyBinding + `(JSON.stringify({ id, method, params: params || [] }));
    });
  };
  window.__resolveRpcProxy = function (id, resultJSON) {
    const p = window.__rpcProxyPending[id];
    delete window.__rpcProxyPending[id];
    if (p) p.resolve(JSON.parse(resultJSON));
  };
  window.__rejectRpcProxy = function (id, message) {
    const p = window.__rpcProxyPending[id];
    delete window.__rpcProxyPending[id];
    if (p) p.reject(new Error(message));
  };

  window.__submitCapturePending = window.__submitCapturePending || {};
  window.__submitCaptureSeq = window.__submitCaptureSeq || 0;
  window.__submitCapture = function (targetUrl, body) {
    return new Promise((resolve, reject) => {
      const id = ++window.__submitCaptureSeq;
      window.__submitCapturePending[id] = { resolve, reject };
      window.` + submitCaptureBinding + `(JSON.stringify({ id, targetUrl, body }));
    });
  };
  window.__resolveSubmitCapture = function (id, text) {
    const p = window.__submitCapturePending[id];
    delete window.__submitCapturePending[id];
    if (p) p.resolve(text);
  };
  window.__rejectSubmitCapture = function (id, message) {
    const p = window.__submitCapturePending[id];
    delete window.__submitCapturePending[id];
    if (p) p.reject(new Error(message));
  };
})();`

type rpcProxyPayload struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type submitCapturePayload struct {
	ID        int    `json:"id"`
	TargetURL string `json:"targetUrl"`
	Body      string `json:"body"`
}

// Runtime owns the browser context, the dispatcher it feeds, the capture
// bridge it drives, and the terminal-event channel the surrounding
// workflow watches for cancellation on disconnect.
type Runtime struct {
	Dispatcher *rpcdispatch.Dispatcher
	Capture    *capture.Bridge

	allocCtx   context.Context
	allocCancel context.CancelFunc
	ctx        context.Context
	cancel     context.CancelFunc

	Terminal chan error // receives one error on disconnect; never closed

	closeOnce sync.Once
}

// New constructs a Runtime. It does not launch the browser; call Launch.
func New(d *rpcdispatch.Dispatcher, c *capture.Bridge) *Runtime {
	return &Runtime{Dispatcher: d, Capture: c, Terminal: make(chan error, 1)}
}

// Launch opens a headed browser, registers both host-callable bindings,
// installs the popup observer and the pre-document scripts, then opens and
// navigates a page, in the order the contract requires: all three
// host-callable surfaces exist before any page is created.
func (r *Runtime) Launch(ctx context.Context, targetURL string, providerParams provider.Params) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	r.ctx, r.cancel = chromedp.NewContext(r.allocCtx)

	if err := chromedp.Run(r.ctx); err != nil {
		return fmt.Errorf("browserruntime: start browser: %w", err)
	}

	if err := r.registerBindings(); err != nil {
		return err
	}

	r.Capture.ObservePopups(r.ctx)
	r.listenBindingCalls()
	r.listenDisconnect()

	if err := r.installPreDocumentScripts(providerParams); err != nil {
		return err
	}

	if err := chromedp.Run(r.ctx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body"),
	); err != nil {
		return fmt.Errorf("browserruntime: navigate to %s: %w", targetURL, err)
	}

	log.Browser.Info().Str("url", targetURL).Msg("session launched")
	return nil
}

func (r *Runtime) registerBindings() error {
	if err := chromedp.Run(r.ctx,
		runtime.AddBinding(rpcProxyBinding),
		runtime.AddBinding(submitCaptureBinding),
	); err != nil {
		return fmt.Errorf("browserruntime: register bindings: %w", err)
	}
	return nil
}

func (r *Runtime) installPreDocumentScripts(p provider.Params) error {
	providerScript, err := provider.Render(p)
	if err != nil {
		return fmt.Errorf("browserruntime: render provider script: %w", err)
	}

	if err := chromedp.Run(r.ctx,
		page.AddScriptToEvaluateOnNewDocument(bindingWrapperScript),
		page.AddScriptToEvaluateOnNewDocument(providerScript),
	); err != nil {
		return fmt.Errorf("browserruntime: install pre-document scripts: %w", err)
	}
	return nil
}

// listenBindingCalls dispatches Runtime.bindingCalled events to the
// dispatcher or the capture bridge and resolves the page-side Promise with
// the result.
func (r *Runtime) listenBindingCalls() {
	chromedp.ListenTarget(r.ctx, func(ev any) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok {
			return
		}
		switch e.Name {
		case rpcProxyBinding:
			go r.handleRPCProxyCall(e.Payload)
		case submitCaptureBinding:
			go r.handleSubmitCaptureCall(e.Payload)
		}
	})
}

func (r *Runtime) handleRPCProxyCall(payload string) {
	var req rpcProxyPayload
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		log.RPC.Error().Err(err).Msg("malformed rpc proxy binding payload")
		return
	}

	result, err := r.Dispatcher.Dispatch(r.ctx, req.Method, req.Params)
	if err != nil {
		r.resolvePage("__rejectRpcProxy", req.ID, err.Error())
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		r.resolvePage("__rejectRpcProxy", req.ID, err.Error())
		return
	}
	r.resolvePageWithRaw(req.ID, string(resultJSON))
}

func (r *Runtime) handleSubmitCaptureCall(payload string) {
	var req submitCapturePayload
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		log.Capture.Error().Err(err).Msg("malformed submit capture binding payload")
		return
	}

	text, err := r.Capture.Submit(r.ctx, req.TargetURL, req.Body)
	if err != nil {
		r.resolvePage("__rejectSubmitCapture", req.ID, err.Error())
		return
	}
	r.resolvePageText(req.ID, text)
}

func (r *Runtime) resolvePageWithRaw(id int, resultJSON string) {
	call := fmt.Sprintf("window.__resolveRpcProxy(%d, %s)", id, mustJSONString(resultJSON))
	r.evalFireAndForget(call)
}

func (r *Runtime) resolvePageText(id int, text string) {
	call := fmt.Sprintf("window.__resolveSubmitCapture(%d, %s)", id, mustJSONString(text))
	r.evalFireAndForget(call)
}

func (r *Runtime) resolvePage(rejectFn string, id int, message string) {
	call := fmt.Sprintf("window.%s(%d, %s)", rejectFn, id, mustJSONString(message))
	r.evalFireAndForget(call)
}

func (r *Runtime) evalFireAndForget(script string) {
	if err := chromedp.Run(r.ctx, chromedp.Evaluate(script, nil)); err != nil {
		log.Browser.Debug().Err(err).Msg("resolving page promise failed (page likely navigated away)")
	}
}

func mustJSONString(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(encoded)
}

// listenDisconnect watches the browser context (derived from the allocator
// context) for cancellation (browser process exit, user-closed window, or
// Close) and reports it once on Terminal.
func (r *Runtime) listenDisconnect() {
	go func() {
		<-r.ctx.Done()
		select {
		case r.Terminal <- (&bridgeerr.BrowserDisconnected{Reason: r.ctx.Err().Error()}):
		default:
		}
	}()
}

// Close terminates the browser. Idempotent.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		if r.allocCancel != nil {
			r.allocCancel()
		}
		log.Browser.Info().Msg("session closed")
	})
}
