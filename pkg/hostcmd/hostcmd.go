// Package hostcmd wraps invocation of host-level tools (powershell.exe,
// vmrun.exe, diskpart) behind a small Runner interface so providers can be
// tested without touching the host.
package hostcmd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single host command. Lifecycle commands which take
// longer (guest shutdown, boot) are polled, not awaited, so a generous single
// invocation bound is enough.
const DefaultTimeout = 2 * time.Minute

// Runner executes one host command and returns its combined output.
type Runner interface {
	Run(name string, args ...string) (string, error)
}

type execRunner struct {
	timeout time.Duration
}

// NewRunner returns a Runner backed by os/exec. A zero timeout means
// DefaultTimeout.
func NewRunner(timeout time.Duration) Runner {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &execRunner{timeout: timeout}
}

func (r *execRunner) Run(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%s timed out after %s", name, r.timeout)
		}
		return output, fmt.Errorf("%s failed: %w", name, err)
	}
	return output, nil
}

// LookPath reports where name resolves on PATH, or falls back to the first
// existing candidate path. Used by availability probing to name the exact
// missing binary in diagnostics.
func LookPath(name string, candidates ...string) (string, error) {
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found on PATH", name)
}
