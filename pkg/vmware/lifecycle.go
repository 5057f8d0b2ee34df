package vmware

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/containers/common/pkg/strongunits"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/provider"
	"github.com/winfab/hvkit/pkg/vmstate"
)

// ValidateConfiguration composes the shared base validation with the
// Workstation findings: the VHD substitution rule and the TPM downgrade.
// Both are warnings, not errors, so the pipeline can proceed under reduced
// capability instead of aborting on a guessed-wrong upstream configuration.
func (p *Provider) ValidateConfiguration(vm *config.VirtualMachine) *config.ValidationResult {
	result := config.Validate(vm, capabilities)

	if vm.NormalizedDiskFormat() == config.DiskFormatVHD {
		result.AddWarning("Workstation cannot boot from a VHD disk; the disk will be created as VMDK instead (the file extension changes accordingly)")
	}
	if vm.EnableTPM {
		result.AddWarning("a virtual TPM under Workstation requires full-VM encryption, which breaks unattended automation; the TPM is disabled for this VM and will function normally once the image is deployed to real hardware")
	}
	return result
}

// CreateVM writes the VMX descriptor and backing disk into the VM directory.
// Registration with the Workstation inventory is deliberately skipped: it is
// unreliable, and the descriptor path addresses the VM from here on.
func (p *Provider) CreateVM(vm *config.VirtualMachine) (*config.Handle, error) {
	result := p.ValidateConfiguration(vm)
	if !result.Valid {
		return nil, &provider.ConfigurationError{Result: result}
	}
	for _, w := range result.Warnings {
		p.log.Warn(w)
	}

	vmDir := vm.VMDir()
	vmxPath := filepath.Join(vmDir, vm.Name+".vmx")
	if _, err := os.Stat(vmxPath); err == nil {
		// two pipeline runs with the same name would silently share one
		// descriptor otherwise
		return nil, fmt.Errorf("a VM descriptor already exists at %s", vmxPath)
	}
	if err := os.MkdirAll(vmDir, 0755); err != nil {
		return nil, err
	}

	diskPath := vm.DiskPath
	if diskPath == "" {
		diskPath = filepath.Join(vmDir, vm.Name+".vmdk")
	}
	if vm.NormalizedDiskFormat() == config.DiskFormatVHD {
		substituted := strings.TrimSuffix(diskPath, filepath.Ext(diskPath)) + ".vmdk"
		p.log.Warnf("substituting bootable disk format: %s -> %s", diskPath, substituted)
		diskPath = substituted
	}
	if _, err := os.Stat(diskPath); errors.Is(err, fs.ErrNotExist) {
		if err := p.createVMDK(diskPath, vm.EffectiveDiskSize()); err != nil {
			return nil, err
		}
	}

	enableTPM := false // downgraded; see ValidateConfiguration
	if err := generateVMX(vm, vmxPath, diskPath, enableTPM).save(); err != nil {
		// no usable descriptor may be left behind
		os.Remove(vmxPath)
		return nil, fmt.Errorf("writing VM descriptor %s: %w", vmxPath, err)
	}

	return &config.Handle{
		Name:           vm.Name,
		Backend:        config.BackendVMware,
		DescriptorPath: vmxPath,
		DiskPath:       diskPath,
		LastState:      vmstate.Off,
	}, nil
}

func (p *Provider) createVMDK(path string, size strongunits.B) error {
	exe, err := p.lookPath(VDiskManagerExe, vdiskManagerCandidates()...)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	sizeMB := uint64(size) / (1024 * 1024)
	out, err := p.runner.Run(exe, "-c", "-s", fmt.Sprintf("%dMB", sizeMB), "-a", "lsilogic", "-t", "0", path)
	if err != nil {
		return fmt.Errorf("creating disk %s: %s: %w", path, out, err)
	}
	return nil
}

func vdiskManagerCandidates() []string {
	return []string{
		`C:\Program Files (x86)\VMware\VMware Workstation\vmware-vdiskmanager.exe`,
		`C:\Program Files\VMware\VMware Workstation\vmware-vdiskmanager.exe`,
	}
}

// StartVM boots the VM. A console start always uses vmrun: the control
// plane has no notion of showing a display.
func (p *Provider) StartVM(h *config.Handle, showConsole bool) error {
	if showConsole {
		if err := p.checkHandle(h); err != nil {
			return err
		}
		if out, err := p.vmrun.start(h.DescriptorPath, true); err != nil {
			return p.operationError("start", h, out, err)
		}
		h.LastState = vmstate.Starting
		return nil
	}
	err := p.powerCommand("start", h, "on", func() (string, error) {
		return p.vmrun.start(h.DescriptorPath, false)
	})
	if err == nil {
		h.LastState = vmstate.Starting
	}
	return err
}

// StopVM requests a guest shutdown, or an immediate power-off when force is
// set. The two are distinct commands on both channels.
func (p *Provider) StopVM(h *config.Handle, force bool) error {
	restOp := "shutdown"
	if force {
		restOp = "off"
	}
	err := p.powerCommand("stop", h, restOp, func() (string, error) {
		return p.vmrun.stop(h.DescriptorPath, force)
	})
	if err == nil {
		h.LastState = vmstate.Stopping
	}
	return err
}

// RemoveVM force-stops the VM if needed, removes it from the control-plane
// inventory when that happens to work (it often does not, and that is fine),
// and deletes the VM directory. Directory absence is the success signal.
func (p *Provider) RemoveVM(h *config.Handle, removeDisks bool) error {
	if err := p.checkHandle(h); err != nil {
		return err
	}

	if !vmstate.IsOff(p.GetVMState(h)) {
		if err := p.StopVM(h, true); err != nil {
			p.log.Debugf("force-stop before removal of VM %q: %v", h.Name, err)
		}
		time.Sleep(p.graceDelay)
	}

	if client := p.controlPlane(); client != nil {
		id, err := p.resolveControlPlaneID(client, h)
		if err == nil && id != "" {
			err = client.Delete(id)
		}
		if err != nil {
			// expected for unauthorized or never-registered VMs
			p.log.Debugf("deregistering VM %q from the control plane failed (continuing): %v", h.Name, err)
		}
	}

	if !removeDisks {
		h.LastState = vmstate.Unknown
		return nil
	}

	vmDir := h.VMDir()
	if err := os.RemoveAll(vmDir); err != nil {
		return p.operationError("remove", h, "", err)
	}
	if h.DiskPath != "" && !strings.HasPrefix(strings.ToLower(h.DiskPath), strings.ToLower(vmDir)) {
		if err := os.Remove(h.DiskPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return p.operationError("remove", h, "", err)
		}
	}
	if _, err := os.Stat(vmDir); !errors.Is(err, fs.ErrNotExist) {
		return p.operationError("remove", h, "", fmt.Errorf("VM directory %s still exists", vmDir))
	}
	h.LastState = vmstate.Unknown
	return nil
}

// GetVMState never fails. The control plane answers when it can; otherwise
// presence in `vmrun list` decides between Running and Off, and any further
// problem yields Unknown.
func (p *Provider) GetVMState(h *config.Handle) vmstate.State {
	if err := p.checkHandle(h); err != nil {
		return vmstate.Unknown
	}

	if client := p.controlPlane(); client != nil {
		if id, err := p.resolveControlPlaneID(client, h); err == nil && id != "" {
			if raw, err := client.PowerState(id); err == nil {
				state := vmstate.Normalize(raw)
				h.LastState = state
				return state
			}
		}
	}

	running, err := p.vmrun.running(h.DescriptorPath)
	if err != nil {
		return vmstate.Unknown
	}
	state := vmstate.Off
	if running {
		state = vmstate.Running
	}
	h.LastState = state
	return state
}

// GetVMIPAddress polls both channels until the guest reports an IPv4
// address or timeout expires; expiry returns an empty address, not an error.
func (p *Provider) GetVMIPAddress(h *config.Handle, timeout time.Duration) (string, error) {
	if err := p.checkHandle(h); err != nil {
		return "", err
	}

	client := p.controlPlane()
	deadline := time.Now().Add(timeout)
	for {
		if client != nil {
			if id, err := p.resolveControlPlaneID(client, h); err == nil && id != "" {
				if raw, err := client.IP(id); err == nil {
					if ip := ipv4(raw); ip != "" {
						return ip, nil
					}
				}
			}
		}
		if raw, err := p.vmrun.ip(h.DescriptorPath); err == nil {
			if ip := ipv4(raw); ip != "" {
				return ip, nil
			}
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		time.Sleep(p.pollInterval)
	}
}

func ipv4(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip != nil && ip.To4() != nil {
		return ip.String()
	}
	return ""
}

// AttachISO rewrites the descriptor's CD device in place. The VM should be
// off; Workstation picks the change up on next boot.
func (p *Provider) AttachISO(h *config.Handle, isoPath string) error {
	if err := p.checkHandle(h); err != nil {
		return err
	}
	v, err := loadVMX(h.DescriptorPath)
	if err != nil {
		return p.operationError("attach-iso", h, "", err)
	}
	setISODevice(v, isoPath)
	if err := v.save(); err != nil {
		return p.operationError("attach-iso", h, "", err)
	}
	return nil
}

func (p *Provider) DetachISO(h *config.Handle) error {
	if err := p.checkHandle(h); err != nil {
		return err
	}
	v, err := loadVMX(h.DescriptorPath)
	if err != nil {
		return p.operationError("detach-iso", h, "", err)
	}
	clearISODevice(v)
	if err := v.save(); err != nil {
		return p.operationError("detach-iso", h, "", err)
	}
	return nil
}

// NewVirtualDisk creates a VMDK through Workstation's own disk tool and
// everything else through the backend-independent diskpart utility.
func (p *Provider) NewVirtualDisk(path string, size strongunits.B) error {
	if strings.EqualFold(filepath.Ext(path), ".vmdk") {
		return p.createVMDK(path, size)
	}
	return p.disks.Create(path, size)
}

func (p *Provider) MountVirtualDisk(path string) (string, error) {
	return p.disks.Mount(path)
}

func (p *Provider) DismountVirtualDisk(path string) error {
	return p.disks.Dismount(path)
}
