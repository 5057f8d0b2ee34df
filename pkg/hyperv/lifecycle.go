package hyperv

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
	"github.com/google/uuid"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/provider"
	"github.com/winfab/hvkit/pkg/vmstate"
)

// CreateVM creates the VM directory, the backing disk if missing, and the
// Hyper-V VM itself. If Hyper-V rejects any of the descriptor steps the VM is
// deregistered again so no half-configured VM stays in the inventory; already
// created disks are left for the caller's rollback registry.
func (p *Provider) CreateVM(vm *config.VirtualMachine) (*config.Handle, error) {
	result := p.ValidateConfiguration(vm)
	if !result.Valid {
		return nil, &provider.ConfigurationError{Result: result}
	}
	for _, w := range result.Warnings {
		p.log.Warn(w)
	}

	// two pipeline runs given the same name would otherwise fight over one
	// inventory entry
	if out, err := p.ps.Run(fmt.Sprintf("(Get-VM -Name '%s').Id.Guid", psQuote(vm.Name))); err == nil && strings.TrimSpace(out) != "" {
		return nil, fmt.Errorf("a Hyper-V VM named %q already exists", vm.Name)
	}

	vmDir := vm.VMDir()
	if err := os.MkdirAll(vmDir, 0755); err != nil {
		return nil, err
	}

	diskPath := vm.DiskPath
	if diskPath == "" {
		diskPath = filepath.Join(vmDir, vm.Name+"."+strings.ToLower(vm.NormalizedDiskFormat()))
	}
	if _, err := os.Stat(diskPath); errors.Is(err, fs.ErrNotExist) {
		if err := p.disks.Create(diskPath, vm.EffectiveDiskSize()); err != nil {
			return nil, err
		}
	}

	generation := 2
	if vm.NormalizedDiskFormat() == config.DiskFormatVHD {
		generation = 1
	}
	out, err := p.ps.Run(fmt.Sprintf(
		"(New-VM -Name '%s' -Path '%s' -MemoryStartupBytes %d -Generation %d -VHDPath '%s').Id.Guid",
		psQuote(vm.Name), psQuote(vm.Dir), uint64(vm.Memory), generation, psQuote(diskPath)))
	if err != nil {
		return nil, fmt.Errorf("creating Hyper-V VM %q: %s: %w", vm.Name, out, err)
	}
	id, err := uuid.Parse(strings.TrimSpace(out))
	if err != nil {
		return nil, fmt.Errorf("Hyper-V returned an unparseable VM id %q: %w", strings.TrimSpace(out), err)
	}

	handle := &config.Handle{
		Name:           vm.Name,
		Backend:        config.BackendHyperV,
		ID:             id.String(),
		DescriptorPath: filepath.Join(vmDir, "Virtual Machines"),
		DiskPath:       diskPath,
		LastState:      vmstate.Off,
	}

	if err := p.configureNewVM(vm, handle, generation); err != nil {
		// leave no unusable descriptor behind
		if out, derr := p.ps.Run(fmt.Sprintf("Get-VM -Id '%s' | Remove-VM -Force", handle.ID)); derr != nil {
			p.log.Debugf("undo of partially configured VM %q failed: %s", vm.Name, out)
		}
		return nil, err
	}

	return handle, nil
}

func (p *Provider) configureNewVM(vm *config.VirtualMachine, h *config.Handle, generation int) error {
	steps := []string{
		fmt.Sprintf("Set-VM -Name '%s' -ProcessorCount %d -StaticMemory -CheckpointType Disabled",
			psQuote(vm.Name), vm.Processors),
	}
	if vm.BootISOPath != "" {
		steps = append(steps,
			fmt.Sprintf("Add-VMDvdDrive -VMName '%s' -Path '%s'", psQuote(vm.Name), psQuote(vm.BootISOPath)))
		if generation == 2 {
			steps = append(steps,
				fmt.Sprintf("Set-VMFirmware -VMName '%s' -FirstBootDevice (Get-VMDvdDrive -VMName '%s')",
					psQuote(vm.Name), psQuote(vm.Name)))
		}
	}
	if generation == 2 {
		secureBoot := "Off"
		if vm.EnableSecureBoot {
			secureBoot = "On"
		}
		steps = append(steps,
			fmt.Sprintf("Set-VMFirmware -VMName '%s' -EnableSecureBoot %s", psQuote(vm.Name), secureBoot))
	}
	if vm.EnableTPM {
		steps = append(steps,
			fmt.Sprintf("Set-VMKeyProtector -VMName '%s' -NewLocalKeyProtector", psQuote(vm.Name)),
			fmt.Sprintf("Enable-VMTPM -VMName '%s'", psQuote(vm.Name)))
	}

	for _, step := range steps {
		if out, err := p.ps.Run(step); err != nil {
			return p.operationError("create", h, out, err)
		}
	}
	return nil
}

func (p *Provider) StartVM(h *config.Handle, showConsole bool) error {
	sel, err := p.vmSelector(h)
	if err != nil {
		return err
	}
	if out, err := p.ps.Run(sel + " | Start-VM"); err != nil {
		return p.operationError("start", h, out, err)
	}
	h.LastState = vmstate.Starting
	if showConsole {
		// vmconnect blocks until its window closes, so detach it
		if out, err := p.runner.Run("cmd.exe", "/c", "start", "vmconnect.exe", "localhost", h.Name); err != nil {
			p.log.Warnf("could not open console for VM %q: %s: %v", h.Name, out, err)
		}
	}
	return nil
}

// StopVM asks the guest to shut down, or powers the VM off when force is
// set. The two map to distinct Hyper-V commands.
func (p *Provider) StopVM(h *config.Handle, force bool) error {
	sel, err := p.vmSelector(h)
	if err != nil {
		return err
	}
	cmd := sel + " | Stop-VM -Force"
	if force {
		cmd = sel + " | Stop-VM -TurnOff -Force"
	}
	if out, err := p.ps.Run(cmd); err != nil {
		return p.operationError("stop", h, out, err)
	}
	h.LastState = vmstate.Stopping
	return nil
}

// RemoveVM force-stops the VM if it is still running, deregisters it from
// the Hyper-V inventory (best effort), and removes the VM directory tree
// when removeDisks is set. Directory absence is the success signal; a failed
// deregistration alone does not fail the removal.
func (p *Provider) RemoveVM(h *config.Handle, removeDisks bool) error {
	if !vmstate.IsOff(p.GetVMState(h)) {
		if err := p.StopVM(h, true); err != nil {
			p.log.Debugf("force-stop before removal of VM %q: %v", h.Name, err)
		}
		time.Sleep(p.graceDelay)
	}

	if sel, err := p.vmSelector(h); err == nil {
		if out, err := p.ps.Run(sel + " | Remove-VM -Force"); err != nil {
			p.log.Warnf("deregistering VM %q from Hyper-V failed (continuing): %s", h.Name, out)
		}
	} else {
		p.log.Debugf("VM %q not found in Hyper-V inventory, nothing to deregister", h.Name)
	}

	if !removeDisks {
		h.LastState = vmstate.Unknown
		return nil
	}

	vmDir := h.VMDir()
	if err := os.RemoveAll(vmDir); err != nil {
		return p.operationError("remove", h, "", err)
	}
	if h.DiskPath != "" && !strings.HasPrefix(h.DiskPath, vmDir) {
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

// GetVMState never fails; any resolution or query problem yields Unknown.
func (p *Provider) GetVMState(h *config.Handle) vmstate.State {
	sel, err := p.vmSelector(h)
	if err != nil {
		return vmstate.Unknown
	}
	out, err := p.ps.Run("(" + sel + ").State")
	if err != nil {
		return vmstate.Unknown
	}
	state := vmstate.Normalize(out)
	h.LastState = state
	return state
}

// GetVMIPAddress polls the VM's network adapters until an IPv4 address shows
// up or timeout expires. Expiry returns an empty address, not an error.
func (p *Provider) GetVMIPAddress(h *config.Handle, timeout time.Duration) (string, error) {
	sel, err := p.vmSelector(h)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(timeout)
	for {
		out, err := p.ps.Run("(" + sel + " | Get-VMNetworkAdapter).IPAddresses -join ','")
		if err == nil {
			if ip := firstIPv4(out); ip != "" {
				return ip, nil
			}
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		time.Sleep(p.pollInterval)
	}
}

func firstIPv4(list string) string {
	for _, candidate := range strings.Split(list, ",") {
		ip := net.ParseIP(strings.TrimSpace(candidate))
		if ip != nil && ip.To4() != nil {
			return ip.String()
		}
	}
	return ""
}

func (p *Provider) AttachISO(h *config.Handle, isoPath string) error {
	sel, err := p.vmSelector(h)
	if err != nil {
		return err
	}
	if out, err := p.ps.Run(fmt.Sprintf("%s | Add-VMDvdDrive -Path '%s'", sel, psQuote(isoPath))); err != nil {
		return p.operationError("attach-iso", h, out, err)
	}
	return nil
}

func (p *Provider) DetachISO(h *config.Handle) error {
	sel, err := p.vmSelector(h)
	if err != nil {
		return err
	}
	if out, err := p.ps.Run(sel + " | Get-VMDvdDrive | Remove-VMDvdDrive"); err != nil {
		return p.operationError("detach-iso", h, out, err)
	}
	return nil
}

func (p *Provider) NewVirtualDisk(path string, size strongunits.B) error {
	return p.disks.Create(path, size)
}

func (p *Provider) MountVirtualDisk(path string) (string, error) {
	return p.disks.Mount(path)
}

func (p *Provider) DismountVirtualDisk(path string) error {
	return p.disks.Dismount(path)
}
