// Package config holds the data model shared by all hypervisor backends: the
// immutable virtual machine descriptor built by the caller, the runtime handle
// returned by CreateVM, and the per-backend capability declaration.
package config

import (
	"path/filepath"
	"strings"

	"github.com/containers/common/pkg/strongunits"

	"github.com/winfab/hvkit/pkg/vmstate"
)

// Disk format tags understood by at least one backend.
const (
	DiskFormatVHD  = "VHD"
	DiskFormatVHDX = "VHDX"
	DiskFormatVMDK = "VMDK"
)

// Backend tags recorded in VM handles.
const (
	BackendHyperV = "hyperv"
	BackendVMware = "vmware"
)

// DefaultDiskSize is used when a configuration does not specify one.
const DefaultDiskSize = strongunits.B(64 * 1024 * 1024 * 1024)

// VirtualMachine describes the desired virtual machine. It is built by the
// caller before any provider call and is not modified by this layer; a
// provider that needs to deviate from it (disk-format substitution, security
// feature downgrade) records the deviation in the returned handle and the
// validation result instead.
type VirtualMachine struct {
	// Name identifies the VM to the backend and names its on-disk artifacts.
	Name string
	// Dir is the directory the VM's descriptor and disks are created under.
	Dir string
	// Memory is the guest memory size.
	Memory strongunits.B
	// Processors is the virtual CPU count.
	Processors uint
	// DiskPath is the backing virtual disk. Created if it does not exist.
	DiskPath string
	// DiskFormat is one of the DiskFormat* tags.
	DiskFormat string
	// DiskSize is the virtual size of the backing disk when CreateVM has to
	// create it. Zero means DefaultDiskSize.
	DiskSize strongunits.B
	// BootISOPath is the installation/boot media attached at creation time.
	BootISOPath string

	// EnableTPM requests a virtual TPM device.
	EnableTPM bool
	// EnableSecureBoot requests UEFI secure boot.
	EnableSecureBoot bool
}

// NormalizedDiskFormat returns the upper-cased disk format tag, accepting
// either a bare tag ("vmdk") or a file extension (".vmdk").
func (vm *VirtualMachine) NormalizedDiskFormat() string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(vm.DiskFormat), "."))
}

// VMDir returns the directory owned by this virtual machine.
func (vm *VirtualMachine) VMDir() string {
	return filepath.Join(vm.Dir, vm.Name)
}

// EffectiveDiskSize returns DiskSize, or DefaultDiskSize when unset.
func (vm *VirtualMachine) EffectiveDiskSize() strongunits.B {
	if vm.DiskSize == 0 {
		return DefaultDiskSize
	}
	return vm.DiskSize
}

// Handle identifies a created virtual machine for the rest of its lifetime.
// It is returned by Provider.CreateVM and mutated only by provider methods.
// After RemoveVM completes the handle must not be reused.
type Handle struct {
	// Name is the VM name as known to the backend.
	Name string
	// Backend is the backend tag the handle belongs to (BackendHyperV, ...).
	Backend string
	// ID is the backend-native identity, when the backend assigns one. The
	// Workstation backend deliberately never populates it (registration with
	// its inventory is skipped), so it may stay empty for a VM's whole life.
	ID string
	// DescriptorPath is the on-disk VM descriptor. For backends without a
	// trustworthy inventory this path IS the VM's identity.
	DescriptorPath string
	// DiskPath is the backing virtual disk actually in use. May differ in
	// extension from the requested DiskPath after format substitution.
	DiskPath string
	// LastState is the lifecycle state most recently observed by a provider
	// method. It is a cache, not ground truth; use GetVMState for the latter.
	LastState vmstate.State
}

// VMDir returns the directory owned by the virtual machine behind h.
func (h *Handle) VMDir() string {
	return filepath.Dir(h.DescriptorPath)
}

// Capabilities declares what a backend supports. Static per provider and
// read-only at runtime; ValidateConfiguration checks configurations against
// it before any resource is created.
type Capabilities struct {
	DiskFormats        []string
	SupportsTPM        bool
	SupportsSecureBoot bool
	MaxMemory          strongunits.B
	MaxProcessors      uint
}

// SupportsDiskFormat reports whether format (a DiskFormat* tag) appears in
// the capability declaration.
func (c Capabilities) SupportsDiskFormat(format string) bool {
	for _, f := range c.DiskFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}
