// Package vmware binds the provider contract to VMware Workstation. Unlike
// the Hyper-V backend there is no integrated management surface: commands go
// through the vmrest HTTP control plane when it is up and authenticated, and
// through the vmrun CLI otherwise. Workstation's inventory registration is
// unreliable, so a VM is addressed by its VMX descriptor path for its whole
// lifetime and the inventory is never treated as ground truth.
package vmware

import (
	"errors"
	"sync"
	"time"

	"github.com/containers/common/pkg/strongunits"
	"github.com/sirupsen/logrus"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/diskutil"
	"github.com/winfab/hvkit/pkg/hostcmd"
	"github.com/winfab/hvkit/pkg/provider"
	"github.com/winfab/hvkit/pkg/vmware/vmrest"
)

var capabilities = config.Capabilities{
	// VHD is accepted but substituted: Workstation cannot boot from it.
	DiskFormats:        []string{config.DiskFormatVMDK, config.DiskFormatVHD},
	SupportsTPM:        true,
	SupportsSecureBoot: true,
	MaxMemory:          strongunits.GiB(128).ToBytes(),
	MaxProcessors:      32,
}

// VDiskManagerExe creates VMDK disks; diskpart only speaks VHD/VHDX.
const VDiskManagerExe = "vmware-vdiskmanager.exe"

// minVMRunVersion is the oldest vmrun with reliable nogui/soft-stop
// behavior on Windows hosts.
const minVMRunVersion = "v1.17.0"

// Options configures a Workstation provider. Credentials are passed through
// from the caller; this layer stores nothing.
type Options struct {
	// Logger receives warnings and debug output. nil means the process-wide
	// standard logger.
	Logger *logrus.Logger
	// ControlPlaneURL overrides vmrest.DefaultBaseURL.
	ControlPlaneURL string
	// Username and Password authenticate against the control plane. When
	// empty the control plane is never attempted and every command uses
	// the CLI channel.
	Username string
	Password string
	// VMRunPath overrides discovery of vmrun.exe.
	VMRunPath string
}

// Provider implements provider.Provider on top of VMware Workstation.
type Provider struct {
	opts  Options
	log   *logrus.Logger
	vmrun *vmrunCLI
	disks *diskutil.Manager

	runner       hostcmd.Runner
	lookPath     func(name string, candidates ...string) (string, error)
	pollInterval time.Duration
	graceDelay   time.Duration

	// the control channel is bootstrapped lazily, exactly once per provider
	// instance; concurrent first callers serialize on restOnce
	restOnce sync.Once
	rest     *vmrest.Client
	restErr  error
}

var _ provider.Provider = (*Provider)(nil)

func New(opts Options) *Provider {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	runner := hostcmd.NewRunner(0)
	return &Provider{
		opts:         opts,
		log:          log,
		vmrun:        newVMRun(runner, opts.VMRunPath),
		disks:        diskutil.New(runner, log),
		runner:       runner,
		lookPath:     hostcmd.LookPath,
		pollInterval: 3 * time.Second,
		graceDelay:   2 * time.Second,
	}
}

func (p *Provider) Name() string {
	return config.BackendVMware
}

func (p *Provider) Capabilities() config.Capabilities {
	return capabilities
}

// controlPlane bootstraps the vmrest channel on first use. A nil client
// means the channel is unusable (no credentials, rejected credentials, or
// daemon not reachable); commands then use the CLI channel directly.
func (p *Provider) controlPlane() *vmrest.Client {
	p.restOnce.Do(func() {
		if p.opts.Username == "" {
			p.restErr = errors.New("no control plane credentials configured")
			p.log.Debug("vmrest credentials not configured, using the vmrun channel for all commands")
			return
		}
		client := vmrest.New(p.opts.ControlPlaneURL, p.opts.Username, p.opts.Password)
		if err := client.Ping(); err != nil {
			p.restErr = err
			p.log.Warnf("vmrest control plane not usable, falling back to the vmrun channel: %v", err)
			return
		}
		p.rest = client
	})
	return p.rest
}

// resolveControlPlaneID maps a handle to a control-plane inventory id.
// Identity resolution for this backend is name-as-identity → descriptor
// path → (credentialed only) inventory lookup; an empty id with nil error
// means "not registered, address it by descriptor path instead".
func (p *Provider) resolveControlPlaneID(client *vmrest.Client, h *config.Handle) (string, error) {
	if h.ID != "" {
		return h.ID, nil
	}
	id, err := client.FindByPath(h.DescriptorPath)
	if err != nil {
		return "", err
	}
	if id != "" {
		// cache the discovered identity, but keep trusting the path
		h.ID = id
	}
	return id, nil
}

func (p *Provider) checkHandle(h *config.Handle) error {
	if h.Backend != config.BackendVMware {
		return &provider.ResolutionError{
			Name: h.Name, Backend: config.BackendVMware,
			Reason: "handle belongs to backend \"" + h.Backend + "\"",
		}
	}
	if h.DescriptorPath == "" {
		return &provider.ResolutionError{
			Name: h.Name, Backend: config.BackendVMware,
			Reason: "handle carries no descriptor path",
		}
	}
	return nil
}

func (p *Provider) operationError(op string, h *config.Handle, output string, err error) error {
	return &provider.OperationError{
		Op: op, VM: h.Name, Backend: config.BackendVMware,
		Output: output, Err: err,
	}
}

// powerCommand runs one lifecycle command through the two-tier strategy:
// control plane first, CLI on an unauthorized classification. restOp is the
// vmrest power operation; cli drives vmrun with the descriptor path.
func (p *Provider) powerCommand(op string, h *config.Handle, restOp string, cli func() (string, error)) error {
	if err := p.checkHandle(h); err != nil {
		return err
	}

	client := p.controlPlane()
	if client != nil {
		id, err := p.resolveControlPlaneID(client, h)
		switch {
		case errors.Is(err, vmrest.ErrUnauthorized):
			p.log.Warnf("control plane rejected credentials during %s of VM %q, retrying via vmrun", op, h.Name)
		case err != nil:
			return p.operationError(op, h, "", err)
		case id == "":
			p.log.Debugf("VM %q is not registered with the control plane, using its descriptor path", h.Name)
		default:
			err := client.SetPower(id, restOp)
			if err == nil {
				return nil
			}
			if !errors.Is(err, vmrest.ErrUnauthorized) {
				// a non-auth rejection must surface, not trigger fallback
				return p.operationError(op, h, "", err)
			}
			p.log.Warnf("control plane rejected credentials during %s of VM %q, retrying via vmrun", op, h.Name)
		}
	}

	if out, err := cli(); err != nil {
		return p.operationError(op, h, out, err)
	}
	return nil
}
