// Package selector resolves a requested backend tag to a validated provider
// instance. Resolution of "auto" is deterministic: Hyper-V is preferred
// because its management surface is integrated, then Workstation; the caller
// is told this order rather than left to guess.
package selector

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/hyperv"
	"github.com/winfab/hvkit/pkg/provider"
	"github.com/winfab/hvkit/pkg/vmware"
)

// Auto selects the first available backend in the documented order.
const Auto = "auto"

// Options carries the caller-supplied pieces providers cannot discover on
// their own: the logging sink and pass-through control-plane credentials.
type Options struct {
	Logger *logrus.Logger

	// Workstation control plane credentials; see vmware.Options.
	ControlPlaneURL string
	Username        string
	Password        string
}

// New constructs the named backend without checking its availability. Most
// callers want Get; New exists for diagnostics that report on backends which
// may well be unusable.
func New(name string, opts Options) (provider.Provider, error) {
	switch normalize(name) {
	case config.BackendHyperV:
		return hyperv.New(opts.Logger), nil
	case config.BackendVMware:
		return vmware.New(vmware.Options{
			Logger:          opts.Logger,
			ControlPlaneURL: opts.ControlPlaneURL,
			Username:        opts.Username,
			Password:        opts.Password,
		}), nil
	case Auto:
		return nil, fmt.Errorf("backend %q must be resolved through Get", Auto)
	default:
		return nil, fmt.Errorf("unknown backend %q (known: %s, %s, %s)",
			name, config.BackendHyperV, config.BackendVMware, Auto)
	}
}

// Get resolves name ("hyperv", "vmware" or "auto") to a provider whose
// availability has been verified. An unavailable backend fails fast with an
// UnavailableError itemizing every unmet requirement.
func Get(name string, opts Options) (provider.Provider, error) {
	if normalize(name) == Auto {
		return autoResolve(opts)
	}
	p, err := New(name, opts)
	if err != nil {
		return nil, err
	}
	return validated(p)
}

// ForHandle resolves the provider a handle was created by. The returned
// provider is not availability-checked again: the handle's existence implies
// the backend worked recently, and lifecycle calls surface their own errors.
func ForHandle(h *config.Handle, opts Options) (provider.Provider, error) {
	p, err := New(h.Backend, opts)
	if err != nil {
		return nil, fmt.Errorf("handle for VM %q names unknown backend %q", h.Name, h.Backend)
	}
	return p, nil
}

func normalize(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hyperv", "hyper-v", "native":
		return config.BackendHyperV
	case "vmware", "workstation", "desktop-virtualization":
		return config.BackendVMware
	case "", Auto, "best":
		return Auto
	default:
		return name
	}
}

func validated(p provider.Provider) (provider.Provider, error) {
	avail := p.AvailabilityDetails()
	if !avail.Available {
		return nil, &provider.UnavailableError{Backend: p.Name(), Issues: avail.Issues}
	}
	return p, nil
}

func autoResolve(opts Options) (provider.Provider, error) {
	var issues []string
	for _, name := range []string{config.BackendHyperV, config.BackendVMware} {
		p, err := Get(name, opts)
		if err == nil {
			return p, nil
		}
		issues = append(issues, fmt.Sprintf("%s: %v", name, err))
	}
	return nil, &provider.UnavailableError{Backend: Auto, Issues: issues}
}
