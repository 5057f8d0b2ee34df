package vmware

import (
	"fmt"
	"os"
	"strings"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/util"
)

// vmxFile is an in-memory view of a Workstation VM descriptor. The file is a
// flat list of `key = "value"` lines; key order is preserved across edits so
// rewritten descriptors stay diffable against what Workstation itself writes.
type vmxFile struct {
	path   string
	keys   []string
	values map[string]string
}

func newVMX(path string) *vmxFile {
	return &vmxFile{path: path, values: map[string]string{}}
}

func loadVMX(path string) (*vmxFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v := newVMX(path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		v.set(strings.TrimSpace(key), util.TrimQuotes(strings.TrimSpace(value)))
	}
	return v, nil
}

func (v *vmxFile) set(key, value string) {
	if _, exists := v.values[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.values[key] = value
}

func (v *vmxFile) get(key string) string {
	return v.values[key]
}

// unset drops every key with the given prefix.
func (v *vmxFile) unset(prefix string) {
	kept := v.keys[:0]
	for _, key := range v.keys {
		if strings.HasPrefix(key, prefix) {
			delete(v.values, key)
			continue
		}
		kept = append(kept, key)
	}
	v.keys = kept
}

func (v *vmxFile) save() error {
	var b strings.Builder
	for _, key := range v.keys {
		fmt.Fprintf(&b, "%s = \"%s\"\n", key, v.values[key])
	}
	return os.WriteFile(v.path, []byte(b.String()), 0644)
}

// generateVMX builds the descriptor for a new VM. The descriptor IS the VM
// from Workstation's point of view: every later operation reads or rewrites
// this file. enableTPM is passed separately because the provider may have
// downgraded the configuration's request.
func generateVMX(vm *config.VirtualMachine, vmxPath, diskPath string, enableTPM bool) *vmxFile {
	v := newVMX(vmxPath)

	v.set(".encoding", "UTF-8")
	v.set("config.version", "8")
	v.set("virtualHW.version", "21")
	v.set("displayName", vm.Name)
	v.set("guestOS", "windows9-64")

	v.set("memsize", fmt.Sprintf("%d", uint64(vm.Memory)/(1024*1024)))
	v.set("numvcpus", fmt.Sprintf("%d", vm.Processors))

	v.set("firmware", "efi")
	v.set("uefi.secureBoot.enabled", vmxBool(vm.EnableSecureBoot))
	if enableTPM {
		v.set("vtpm.present", "TRUE")
	}

	v.set("nvme0.present", "TRUE")
	v.set("nvme0:0.present", "TRUE")
	v.set("nvme0:0.fileName", diskPath)

	v.set("sata0.present", "TRUE")
	if vm.BootISOPath != "" {
		setISODevice(v, vm.BootISOPath)
	}

	v.set("ethernet0.present", "TRUE")
	v.set("ethernet0.connectionType", "nat")
	v.set("ethernet0.virtualDev", "e1000e")
	v.set("ethernet0.addressType", "generated")

	v.set("tools.syncTime", "TRUE")

	return v
}

func setISODevice(v *vmxFile, isoPath string) {
	v.set("sata0:1.present", "TRUE")
	v.set("sata0:1.deviceType", "cdrom-image")
	v.set("sata0:1.fileName", isoPath)
	v.set("sata0:1.startConnected", "TRUE")
}

func clearISODevice(v *vmxFile) {
	v.unset("sata0:1.")
	v.set("sata0:1.present", "FALSE")
}

func vmxBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
