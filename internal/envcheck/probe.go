// Package envcheck verifies the prerequisites BrowserRuntime needs before
// it ever launches a browser: a resolvable Chrome/Chromium binary and an
// http(s) target URL.
//
// Binary resolution is a PATH/file lookup and starts no subprocess. When the
// debug flag is set, the resolved binary is additionally run with
// --version behind a pty (github.com/creack/pty) instead of exec.Command's
// plain pipes, and the raw terminal bytes are teed to disk — useful when a
// shell alias or profile script on the operator's machine swallows output
// that a plain pipe would otherwise hide.
package envcheck

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/creack/pty"

	"walletbridge/internal/bridgeerr"
	"walletbridge/internal/log"
)

// candidateBinaries are the executable names probed, in order, when no
// explicit path is configured.
var candidateBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}

// Check verifies chromePath (if set) or one of candidateBinaries resolves
// on PATH, and that targetURL is an http(s) URL. When debug is true, the
// resolved binary's --version is additionally run through a pty and the
// raw output is teed to <logsDir>/pty-dump.log and a hex-dump sibling.
func Check(ctx context.Context, chromePath, targetURL string, debug bool, logsDir string) error {
	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return &bridgeerr.ProbeFailed{Reason: fmt.Sprintf("target url %q is not http(s)", targetURL)}
	}

	resolved, err := resolveBinary(chromePath)
	if err != nil {
		return &bridgeerr.ProbeFailed{Reason: err.Error()}
	}

	if debug {
		if err := dumpViaPty(ctx, resolved, logsDir); err != nil {
			log.Probe.Warn().Err(err).Msg("pty debug probe failed (non-fatal)")
		}
	}

	log.Probe.Info().Str("chrome", resolved).Msg("environment probe passed")
	return nil
}

func resolveBinary(chromePath string) (string, error) {
	if chromePath != "" {
		if _, err := exec.LookPath(chromePath); err == nil {
			return chromePath, nil
		}
		if _, err := os.Stat(chromePath); err == nil {
			return chromePath, nil
		}
		return "", fmt.Errorf("configured chrome path %q is not executable", chromePath)
	}
	for _, name := range candidateBinaries {
		if resolved, err := exec.LookPath(name); err == nil {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("no chrome/chromium binary found on PATH (tried %v)", candidateBinaries)
}

// dumpViaPty runs `<binary> --version` behind a pty and tees the raw bytes
// to pty-dump.log and a hex-dump sibling, for operators debugging an
// environment where the binary resolves but misbehaves.
func dumpViaPty(ctx context.Context, binary, logsDir string) error {
	if runtime.GOOS == "windows" {
		return fmt.Errorf("pty debug probe unsupported on windows")
	}

	if err := os.MkdirAll(logsDir, 0o700); err != nil {
		return fmt.Errorf("envcheck: mkdir logs dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, binary, "--version")
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("envcheck: pty start: %w", err)
	}
	defer ptmx.Close()

	raw, err := io.ReadAll(ptmx)
	if err != nil && len(raw) == 0 {
		return fmt.Errorf("envcheck: read pty: %w", err)
	}

	rawPath := filepath.Join(logsDir, "pty-dump.log")
	if err := os.WriteFile(rawPath, raw, 0o600); err != nil {
		return fmt.Errorf("envcheck: write pty dump: %w", err)
	}

	hexPath := filepath.Join(logsDir, "pty-dump.hex")
	hexFile, err := os.OpenFile(hexPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("envcheck: open hex dump: %w", err)
	}
	defer hexFile.Close()

	dumper := hex.Dumper(hexFile)
	defer dumper.Close()
	if _, err := dumper.Write(raw); err != nil {
		return fmt.Errorf("envcheck: write hex dump: %w", err)
	}

	return cmd.Wait()
}
