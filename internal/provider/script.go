// Package provider renders the JavaScript text that walletbridge installs
// into every page before first script evaluation, impersonating a browser
// wallet extension.
//
// The dual-standard shape (legacy window.ethereum global plus the EIP-6963
// multi-provider announcement protocol) is what every retrieved dApp-facing
// browser-automation example expects to probe; see DESIGN.md for the
// grounding notes on the host-callable wiring this script talks to.
package provider

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/google/uuid"
)

// announcedUUID is the constant identifier reported in every EIP-6963
// announce-provider event, matching real wallet extensions that advertise a
// fixed (not per-session) uuid for the provider implementation.
var announcedUUID = uuid.MustParse("c5e0d7b4-3b1d-4f6a-9e2a-2f6a7b4d8c11").String()

// Params parameterize the rendered script.
type Params struct {
	Address              string // 20-byte hex address, checksummed
	ChainHexID            string // "0x" + lowercase hex(chainID)
	NumericChainIDString string // decimal chain id as a string
}

const scriptTemplate = `(() => {
  const ANNOUNCE_EVENT = "eip6963:announceProvider";
  const REQUEST_EVENT = "eip6963:requestProvider";
  const PROVIDER_INFO = Object.freeze({
    uuid: {{printf "%q" .UUID}},
    name: "MetaMask",
    icon: "data:image/svg+xml;base64,PHN2ZyB4bWxucz0iaHR0cDovL3d3dy53My5vcmcvMjAwMC9zdmciPjwvc3ZnPg==",
    rdns: "io.metamask",
  });

  function createProvider() {
    const listenersByEvent = new Map();

    function listenersFor(event) {
      let list = listenersByEvent.get(event);
      if (!list) {
        list = [];
        listenersByEvent.set(event, list);
      }
      return list;
    }

    const provider = {
      isMetaMask: true,
      chainId: {{printf "%q" .ChainHexID}},
      networkVersion: {{printf "%q" .NumericChainIDString}},
      selectedAddress: {{printf "%q" .Address}},

      isConnected() {
        return true;
      },

      on(event, fn) {
        listenersFor(event).push(fn);
        return provider;
      },

      once(event, fn) {
        const wrapper = (...args) => {
          provider.removeListener(event, wrapper);
          fn(...args);
        };
        listenersFor(event).push(wrapper);
        return provider;
      },

      removeListener(event, fn) {
        const list = listenersFor(event);
        const idx = list.indexOf(fn);
        if (idx !== -1) list.splice(idx, 1);
        return provider;
      },

      removeAllListeners(event) {
        if (event) {
          listenersByEvent.delete(event);
        } else {
          listenersByEvent.clear();
        }
        return provider;
      },

      emit(event, ...args) {
        for (const fn of listenersFor(event).slice()) {
          try {
            fn(...args);
          } catch (e) {
            console.error("walletbridge provider listener error", e);
          }
        }
        return listenersFor(event).length > 0;
      },

      listenerCount(event) {
        return listenersFor(event).length;
      },

      listeners(event) {
        return listenersFor(event).slice();
      },

      async request({ method, params }) {
        return window.__rpcProxy(method, params || []);
      },

      sendAsync(payload, callback) {
        provider
          .request({ method: payload.method, params: payload.params })
          .then((result) => callback(null, { id: payload.id, jsonrpc: "2.0", result }))
          .catch((err) => callback(err));
      },

      send(methodOrPayload, paramsOrCallback) {
        if (typeof methodOrPayload === "string") {
          return provider.request({ method: methodOrPayload, params: paramsOrCallback || [] });
        }
        return provider.sendAsync(methodOrPayload, paramsOrCallback);
      },

      enable() {
        return provider.request({ method: "eth_requestAccounts" });
      },
    };

    return provider;
  }

  const provider = createProvider();
  window.ethereum = provider;

  function announce() {
    window.dispatchEvent(
      new CustomEvent(ANNOUNCE_EVENT, {
        detail: Object.freeze({ info: PROVIDER_INFO, provider }),
      })
    );
  }

  window.addEventListener(REQUEST_EVENT, announce);

  if (document.readyState === "complete") {
    setTimeout(announce, 0);
  } else {
    window.addEventListener("load", () => setTimeout(announce, 0));
  }
})();
`

var tmpl = template.Must(template.New("provider").Parse(scriptTemplate))

// templateData bundles Params with the package-level constant uuid for
// execution by text/template.
type templateData struct {
	Params
	UUID string
}

// Render produces the page-ready script text for the given parameters.
func Render(p Params) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Params: p, UUID: announcedUUID}); err != nil {
		return "", fmt.Errorf("provider: render script: %w", err)
	}
	return buf.String(), nil
}
