// Package provider defines the lifecycle contract every hypervisor backend
// implements, together with the error taxonomy shared by all of them. The
// image-build pipeline programs against this interface only and never
// branches on which virtualization product is present.
package provider

import (
	"time"

	"github.com/containers/common/pkg/strongunits"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/vmstate"
)

// Provider is the abstract lifecycle contract bound to one virtualization
// product. Operations on distinct handles are safe to run concurrently;
// operations on the same handle must be serialized by the caller.
type Provider interface {
	// Name returns the backend tag (config.BackendHyperV, ...).
	Name() string

	// Capabilities returns the backend's static support declaration.
	Capabilities() config.Capabilities

	// ValidateConfiguration checks vm against the backend's capabilities.
	// It is pure and never returns an error; degraded-capability findings
	// are attached as warnings so the caller can decide to proceed.
	ValidateConfiguration(vm *config.VirtualMachine) *config.ValidationResult

	// CreateVM materializes vm and returns a handle for it. On failure no
	// usable descriptor is left behind; partial artifacts (an already
	// created disk) are the caller's rollback registry's to remove.
	CreateVM(vm *config.VirtualMachine) (*config.Handle, error)

	// StartVM boots the VM. showConsole attaches an operator-visible
	// console; the default is headless for unattended automation.
	StartVM(h *config.Handle, showConsole bool) error

	// StopVM stops the VM. force requests an immediate power-off; without
	// it the backend is asked for a graceful guest shutdown. The two are
	// distinct backend commands, not one generic stop.
	StopVM(h *config.Handle, force bool) error

	// RemoveVM force-stops the VM if needed, best-effort deregisters it
	// from any backend inventory, and deletes the VM directory tree when
	// removeDisks is set. Directory absence is the authoritative success
	// signal regardless of deregistration outcome.
	RemoveVM(h *config.Handle, removeDisks bool) error

	// GetVMState returns the VM's lifecycle state. It never fails: a
	// handle that cannot currently be resolved yields vmstate.Unknown.
	GetVMState(h *config.Handle) vmstate.State

	// GetVMIPAddress polls for the guest's IPv4 address up to timeout.
	// An empty result means "not yet available", not failure.
	GetVMIPAddress(h *config.Handle, timeout time.Duration) (string, error)

	// AttachISO and DetachISO mutate the VM descriptor in place.
	AttachISO(h *config.Handle, isoPath string) error
	DetachISO(h *config.Handle) error

	// NewVirtualDisk, MountVirtualDisk and DismountVirtualDisk are
	// backend-independent and work even with no hypervisor installed.
	// MountVirtualDisk returns the assigned mount path; dismounting an
	// already-dismounted disk is not an error.
	NewVirtualDisk(path string, size strongunits.B) error
	MountVirtualDisk(path string) (string, error)
	DismountVirtualDisk(path string) error

	// TestAvailable reports whether the backend can be used at all.
	TestAvailable() bool

	// AvailabilityDetails itemizes every unmet requirement individually so
	// callers can render actionable diagnostics.
	AvailabilityDetails() *Availability
}

// Availability is the itemized result of probing a backend.
type Availability struct {
	// Available is true when the backend can service VM operations.
	Available bool
	// Issues lists every unmet or degraded requirement, one per entry.
	Issues []string
	// Details carries informational probe results (binary paths, versions,
	// service states) keyed by requirement name.
	Details map[string]string
}

func NewAvailability() *Availability {
	return &Availability{Available: true, Details: map[string]string{}}
}

// AddIssue records an unmet requirement. fatal requirements also mark the
// backend unavailable; degraded ones leave availability intact.
func (a *Availability) AddIssue(fatal bool, issue string) {
	a.Issues = append(a.Issues, issue)
	if fatal {
		a.Available = false
	}
}
