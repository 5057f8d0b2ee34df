// Package hyperv binds the provider contract to the host's integrated
// Hyper-V management surface, driven through the Hyper-V PowerShell module.
// Calls are synchronous and the reported state is authoritative; no control
// channel has to be bootstrapped first.
package hyperv

import (
	"fmt"
	"strings"
	"time"

	"github.com/containers/common/pkg/strongunits"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/diskutil"
	"github.com/winfab/hvkit/pkg/hostcmd"
	"github.com/winfab/hvkit/pkg/provider"
)

var capabilities = config.Capabilities{
	DiskFormats:        []string{config.DiskFormatVHD, config.DiskFormatVHDX},
	SupportsTPM:        true,
	SupportsSecureBoot: true,
	MaxMemory:          strongunits.GiB(12288).ToBytes(),
	MaxProcessors:      240,
}

// Provider implements provider.Provider on top of Hyper-V.
type Provider struct {
	ps    *hostcmd.PowerShell
	disks *diskutil.Manager
	log   *logrus.Logger

	runner       hostcmd.Runner
	lookPath     func(name string, candidates ...string) (string, error)
	pollInterval time.Duration
	graceDelay   time.Duration
}

var _ provider.Provider = (*Provider)(nil)

// New returns a Hyper-V provider. A nil logger means the process-wide
// standard logger.
func New(log *logrus.Logger) *Provider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	runner := hostcmd.NewRunner(0)
	return &Provider{
		ps:           hostcmd.NewPowerShell(runner),
		disks:        diskutil.New(runner, log),
		log:          log,
		runner:       runner,
		lookPath:     hostcmd.LookPath,
		pollInterval: 3 * time.Second,
		graceDelay:   2 * time.Second,
	}
}

func (p *Provider) Name() string {
	return config.BackendHyperV
}

func (p *Provider) Capabilities() config.Capabilities {
	return capabilities
}

// ValidateConfiguration composes the shared base validation with the
// Hyper-V specific findings.
func (p *Provider) ValidateConfiguration(vm *config.VirtualMachine) *config.ValidationResult {
	result := config.Validate(vm, capabilities)

	if vm.EnableSecureBoot && vm.NormalizedDiskFormat() == config.DiskFormatVHD {
		result.AddWarning("secure boot requires a generation 2 VM, but a VHD system disk forces generation 1; secure boot will be unavailable for this VM")
	}
	return result
}

// vmSelector maps a handle to a PowerShell pipeline head addressing the VM.
// Resolution order: the stored Hyper-V GUID, then the VM name against the
// live inventory.
func (p *Provider) vmSelector(h *config.Handle) (string, error) {
	if h.Backend != config.BackendHyperV {
		return "", &provider.ResolutionError{
			Name: h.Name, Backend: config.BackendHyperV,
			Reason: fmt.Sprintf("handle belongs to backend %q", h.Backend),
		}
	}
	if h.ID != "" {
		if _, err := uuid.Parse(h.ID); err == nil {
			return fmt.Sprintf("Get-VM -Id '%s'", h.ID), nil
		}
		p.log.Warnf("handle for VM %q carries malformed Hyper-V id %q, falling back to name lookup", h.Name, h.ID)
	}
	if h.Name != "" {
		out, err := p.ps.Run(fmt.Sprintf("(Get-VM -Name '%s').Id.Guid", psQuote(h.Name)))
		if err == nil {
			if id, perr := uuid.Parse(strings.TrimSpace(out)); perr == nil {
				h.ID = id.String()
				return fmt.Sprintf("Get-VM -Id '%s'", h.ID), nil
			}
		}
	}
	return "", &provider.ResolutionError{
		Name: h.Name, Backend: config.BackendHyperV,
		Reason: "no Hyper-V id stored and no VM with this name in the inventory",
	}
}

// psQuote escapes a value for a single-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func (p *Provider) operationError(op string, h *config.Handle, output string, err error) error {
	return &provider.OperationError{
		Op: op, VM: h.Name, Backend: config.BackendHyperV,
		Output: output, Err: err,
	}
}
