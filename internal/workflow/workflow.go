// Package workflow implements the interactive terminal collaborator that
// resolves a config.Session from the operator's answers, then owns
// rejecting any outstanding TxRequest on session teardown.
package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/manifoldco/promptui"

	"walletbridge/internal/approver"
	"walletbridge/internal/assistant"
	"walletbridge/internal/chain"
	"walletbridge/internal/config"
	"walletbridge/internal/walletstore"
)

const (
	optionCreateWallet    = "Create new wallet"
	optionEphemeralWallet = "Use ephemeral wallet (not saved)"
	optionCustomChain     = "Custom chain"
)

// Workflow collects session configuration interactively. Rejecting pending
// requests on teardown is done by TerminalApprover.Outstanding.
type Workflow struct {
	Wallets  *walletstore.Store
	Chains   *chain.Registry
	Resolve  assistant.Resolver
	Bus      *approver.Bus
	SubmitBaseURL string
}

// New constructs a Workflow.
func New(wallets *walletstore.Store, chains *chain.Registry, resolve assistant.Resolver, bus *approver.Bus, submitBaseURL string) *Workflow {
	return &Workflow{Wallets: wallets, Chains: chains, Resolve: resolve, Bus: bus, SubmitBaseURL: submitBaseURL}
}

// Collect runs the interactive prompts and returns a validated Session.
func (w *Workflow) Collect(ctx context.Context) (config.Session, error) {
	wallet, err := w.selectWallet()
	if err != nil {
		return config.Session{}, fmt.Errorf("workflow: select wallet: %w", err)
	}

	c, err := w.selectChain()
	if err != nil {
		return config.Session{}, fmt.Errorf("workflow: select chain: %w", err)
	}

	targetURL, err := (&promptui.Prompt{
		Label:    "Target URL",
		Validate: validateHTTPURL,
	}).Run()
	if err != nil {
		return config.Session{}, fmt.Errorf("workflow: prompt target url: %w", err)
	}

	captureID, err := w.Resolve(ctx, targetURL)
	if err != nil {
		return config.Session{}, fmt.Errorf("workflow: resolve capture id: %w", err)
	}

	session := config.Session{
		Wallet:        wallet,
		Chain:         c,
		URL:           targetURL,
		CaptureID:     captureID,
		FigmaEndpoint: fmt.Sprintf("%s/capture/%s", w.SubmitBaseURL, captureID),
	}
	if err := session.Validate(); err != nil {
		return config.Session{}, err
	}
	return session, nil
}

func (w *Workflow) selectWallet() (walletstore.Wallet, error) {
	wallets, err := w.Wallets.Load()
	if err != nil {
		return walletstore.Wallet{}, err
	}

	items := make([]string, 0, len(wallets)+2)
	for _, wl := range wallets {
		items = append(items, fmt.Sprintf("%s (%s)", wl.Name, wl.Address))
	}
	items = append(items, optionCreateWallet, optionEphemeralWallet)

	idx, _, err := (&promptui.Select{Label: "Select wallet", Items: items}).Run()
	if err != nil {
		return walletstore.Wallet{}, err
	}

	switch {
	case idx < len(wallets):
		return wallets[idx], nil
	case items[idx] == optionCreateWallet:
		name, err := (&promptui.Prompt{Label: "New wallet name"}).Run()
		if err != nil {
			return walletstore.Wallet{}, err
		}
		return w.Wallets.Create(name)
	default:
		return walletstore.CreateEphemeral()
	}
}

func (w *Workflow) selectChain() (chain.Chain, error) {
	all := w.Chains.All()
	items := make([]string, 0, len(all)+1)
	for _, c := range all {
		items = append(items, fmt.Sprintf("%s (%d)", c.Name, c.ID))
	}
	items = append(items, optionCustomChain)

	idx, _, err := (&promptui.Select{Label: "Select chain", Items: items}).Run()
	if err != nil {
		return chain.Chain{}, err
	}

	if idx < len(all) {
		return all[idx], nil
	}

	idStr, err := (&promptui.Prompt{Label: "Custom chain id"}).Run()
	if err != nil {
		return chain.Chain{}, err
	}
	rpc, err := (&promptui.Prompt{Label: "Custom chain RPC URL", Validate: validateHTTPURL}).Run()
	if err != nil {
		return chain.Chain{}, err
	}
	var id int64
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return chain.Chain{}, fmt.Errorf("workflow: invalid chain id %q: %w", idStr, err)
	}
	return chain.NewCustom(id, "", rpc)
}

func validateHTTPURL(input string) error {
	if len(input) < 8 || (input[:7] != "http://" && input[:8] != "https://") {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

// TerminalApprover attaches to the bus and prompts the operator to approve
// or reject each TxRequest as it arrives, tracking outstanding requests so
// a session teardown can reject whatever is still unresolved.
type TerminalApprover struct {
	bus     *approver.Bus
	mu      sync.Mutex
	pending map[uint64]*approver.TxRequest
}

// NewTerminalApprover constructs an approver for bus. It is not attached
// until Run is called; call Run in its own goroutine to start serving
// prompts.
func NewTerminalApprover(bus *approver.Bus) *TerminalApprover {
	return &TerminalApprover{bus: bus, pending: make(map[uint64]*approver.TxRequest)}
}

// Run serves prompts until requests closes or ctx is done. Intended to run
// in its own goroutine for the lifetime of the session.
func (a *TerminalApprover) Run(ctx context.Context) {
	requests, detach := a.bus.Attach()
	defer detach()

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			a.track(req)
			go a.prompt(req)
		}
	}
}

func (a *TerminalApprover) track(req *approver.TxRequest) {
	a.mu.Lock()
	a.pending[req.SequenceID] = req
	a.mu.Unlock()
}

func (a *TerminalApprover) untrack(seq uint64) {
	a.mu.Lock()
	delete(a.pending, seq)
	a.mu.Unlock()
}

func (a *TerminalApprover) prompt(req *approver.TxRequest) {
	defer a.untrack(req.SequenceID)

	fmt.Printf("\n--- signing request #%d (%s) ---\n", req.SequenceID, req.Method)
	for _, f := range req.Display() {
		fmt.Printf("  %s: %s\n", f.Key, f.Value)
	}

	result, err := (&promptui.Select{Label: "Approve this request?", Items: []string{"Approve", "Reject"}}).Run()
	if err != nil {
		req.Reject(fmt.Errorf("workflow: approver prompt failed: %w", err))
		return
	}

	if result == 0 {
		value, err := req.Sign()
		if err != nil {
			req.Reject(err)
			return
		}
		req.Resolve(value)
		return
	}
	req.Reject(fmt.Errorf("user declined"))
}

// Outstanding rejects every still-pending request with cause. Callers
// invoke this on browser-close termination, per the session cancellation
// policy.
func (a *TerminalApprover) Outstanding(cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for seq, req := range a.pending {
		req.Reject(cause)
		delete(a.pending, seq)
	}
}
