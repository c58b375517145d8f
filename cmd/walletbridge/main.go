package main

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"walletbridge/internal/approver"
	"walletbridge/internal/assistant"
	"walletbridge/internal/audit"
	"walletbridge/internal/browserruntime"
	"walletbridge/internal/capture"
	"walletbridge/internal/chain"
	"walletbridge/internal/envcheck"
	"walletbridge/internal/log"
	"walletbridge/internal/provider"
	"walletbridge/internal/rpcdispatch"
	"walletbridge/internal/sessionlog"
	"walletbridge/internal/walletstore"
	"walletbridge/internal/workflow"
)

// injectCommand is the stdin line the operator types to trigger Stage B of
// the capture bridge ("on user command", per the capture bridge contract).
const injectCommand = "inject"

const captureScriptURL = "https://mcp.figma.com/capture.js"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Logger.Fatal().Err(err).Msg("walletbridge exited with error")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "walletbridge",
		Short: "Inject a synthetic wallet provider and mediate RPC calls for a headed browser session",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		configDir   string
		logLevel    string
		chromePath  string
		debug       bool
		submitBase  string
		assistantBin string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a browser session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), runOptions{
				configDir:    configDir,
				logLevel:     logLevel,
				chromePath:   chromePath,
				debug:        debug,
				submitBase:   submitBase,
				assistantBin: assistantBin,
			})
		},
	}

	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".walletbridge")

	cmd.Flags().StringVar(&configDir, "config-dir", defaultConfigDir, "directory for wallets, logs, and the audit database")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&chromePath, "chrome-path", "", "explicit path to a chrome/chromium binary")
	cmd.Flags().BoolVar(&debug, "debug", os.Getenv("WALLETBRIDGE_DEBUG") != "", "enable pty debug dump of the environment probe")
	cmd.Flags().StringVar(&submitBase, "submit-base-url", "https://mcp.figma.com", "base URL the capture submit endpoint is built from")
	cmd.Flags().StringVar(&assistantBin, "assistant", "", "path to the subprocess that resolves a captureId for a target URL")

	return cmd
}

type runOptions struct {
	configDir    string
	logLevel     string
	chromePath   string
	debug        bool
	submitBase   string
	assistantBin string
}

func runSession(ctx context.Context, opts runOptions) error {
	if err := os.MkdirAll(opts.configDir, 0o700); err != nil {
		return fmt.Errorf("walletbridge: create config dir: %w", err)
	}

	sl, err := sessionlog.Open(opts.configDir)
	if err != nil {
		return fmt.Errorf("walletbridge: open session log: %w", err)
	}
	defer sl.Close()

	logFile := filepath.Join(opts.configDir, "logs", "walletbridge.jsonl")
	if err := log.Init(opts.logLevel, logFile); err != nil {
		return fmt.Errorf("walletbridge: init logging: %w", err)
	}

	trail, err := audit.Open(filepath.Join(opts.configDir, "audit.db"))
	if err != nil {
		log.Logger.Warn().Err(err).Msg("audit trail unavailable, continuing without it")
		trail = nil
	}

	wallets := walletstore.New(opts.configDir)
	chains := chain.New()
	bus := approver.NewBus()

	resolve := assistant.Resolver(func(ctx context.Context, url string) (string, error) {
		return "session-" + randomSuffix(), nil
	})
	if opts.assistantBin != "" {
		resolve = assistant.Subprocess(opts.assistantBin)
	}

	wf := workflow.New(wallets, chains, resolve, bus, opts.submitBase)
	session, err := wf.Collect(ctx)
	if err != nil {
		return fmt.Errorf("walletbridge: collect session config: %w", err)
	}
	sl.Line(fmt.Sprintf("session configured: wallet=%s chain=%s url=%s", session.Wallet.Address, session.Chain.Name, session.URL))

	approverCtx, cancelApprover := context.WithCancel(ctx)
	defer cancelApprover()
	terminalApprover := workflow.NewTerminalApprover(bus)
	go terminalApprover.Run(approverCtx)

	logsDir := filepath.Join(opts.configDir, "logs")
	if err := envcheck.Check(ctx, opts.chromePath, session.URL, opts.debug, logsDir); err != nil {
		sl.Line("environment probe failed: " + err.Error())
		return err
	}

	priv, err := walletPrivateKey(session.Wallet.PrivateKey)
	if err != nil {
		return err
	}

	dispatcher := rpcdispatch.New(session.Chain, walletAddress(session.Wallet.Address), priv, bus, nil)
	if trail != nil {
		dispatcher.OnSettled = func(req *approver.TxRequest, value string, signErr error) {
			outcome := "resolved"
			detail := value
			if signErr != nil {
				outcome = "rejected"
				detail = signErr.Error()
			}
			trail.AppendTx(audit.TxRecord{
				SequenceID: req.SequenceID,
				Method:     req.Method,
				Display:    formatDisplay(req.Display()),
				Outcome:    outcome,
				Detail:     detail,
			})
		}
	}

	bridge := capture.NewBridge(captureScriptURL)
	go relayCaptureEvents(bridge, trail, sl)

	rt := browserruntime.New(dispatcher, bridge)
	params := provider.Params{
		Address:              session.Wallet.Address,
		ChainHexID:            session.Chain.HexID,
		NumericChainIDString: fmt.Sprint(session.Chain.ID),
	}

	if err := rt.Launch(ctx, session.URL, params); err != nil {
		sl.Line("browser launch failed: " + err.Error())
		return err
	}
	defer rt.Close()

	fmt.Printf("session running; type %q and press enter to inject the capture bridge\n", injectCommand)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stdinCtx, cancelStdin := context.WithCancel(ctx)
	defer cancelStdin()
	injectCh := make(chan struct{})
	go watchInjectCommand(stdinCtx, injectCh)

	var teardownCause error
loop:
	for {
		select {
		case <-sigCh:
			sl.Line("interrupted by signal")
			teardownCause = fmt.Errorf("session interrupted")
			break loop
		case termErr := <-rt.Terminal:
			sl.Line("browser disconnected: " + termErr.Error())
			teardownCause = termErr
			break loop
		case <-ctx.Done():
			sl.Line("context cancelled")
			teardownCause = ctx.Err()
			break loop
		case <-injectCh:
			sl.Line("capture bridge injection requested")
			result := bridge.Inject(ctx, session.CaptureID, opts.submitBase)
			if !result.Success {
				sl.Line("capture bridge injection failed: " + result.Error)
				log.Capture.Warn().Str("error", result.Error).Msg("capture bridge injection failed")
				continue
			}
			sl.Line("capture bridge injected")
		}
	}
	terminalApprover.Outstanding(teardownCause)

	if trail != nil {
		closeCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		trail.Close(closeCtx)
	}

	return nil
}

// watchInjectCommand reads stdin lines until ctx is done, signalling on ch
// every time the operator types injectCommand. Any other line is ignored.
func watchInjectCommand(ctx context.Context, ch chan<- struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == injectCommand {
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func relayCaptureEvents(b *capture.Bridge, trail *audit.Trail, sl *sessionlog.Log) {
	for ev := range b.Events {
		sl.Line(fmt.Sprintf("%s: %s", ev.Kind, ev.Data))
		if trail != nil && ev.Kind == "capture:submitted" {
			trail.AppendSubmission(audit.SubmissionRecord{Body: ev.Data})
		}
	}
}

func formatDisplay(fields []approver.DisplayField) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f.Key + "=" + f.Value
	}
	return out
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "0000"
	}
	return fmt.Sprintf("%x", b)
}

func walletPrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("walletbridge: parse wallet private key: %w", err)
	}
	return priv, nil
}

func walletAddress(hexAddr string) common.Address {
	return common.HexToAddress(hexAddr)
}
