// Package cmdline defines the command line surface of the hvkit binary and
// converts flag values into the configuration types the providers consume.
package cmdline

import (
	"fmt"

	"github.com/containers/common/pkg/strongunits"
	"github.com/spf13/cobra"

	"github.com/winfab/hvkit/pkg/config"
)

// Options groups every flag of the hvkit command line.
type Options struct {
	Backend  string
	LogLevel string

	// Workstation control plane. The password deliberately has no flag, it is
	// read from the HVKIT_VMREST_PASSWORD environment variable.
	ControlPlaneURL string
	Username        string

	VMName           string
	VMDir            string
	MemoryMiB        uint
	Vcpus            uint
	DiskPath         string
	DiskFormat       string
	DiskSizeGiB      uint
	BootISOPath      string
	EnableTPM        bool
	EnableSecureBoot bool

	HandlePath string
}

// AddGlobalFlags registers the flags every subcommand honors.
func AddGlobalFlags(cmd *cobra.Command, opts *Options) {
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "auto", "hypervisor backend (hyperv, vmware, auto)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.ControlPlaneURL, "vmrest-url", "", "VMware Workstation REST API base URL")
	cmd.PersistentFlags().StringVar(&opts.Username, "vmrest-user", "", "VMware Workstation REST API username")
}

// AddCreateFlags registers the flags describing a virtual machine to create.
func AddCreateFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.VMName, "name", "", "virtual machine name")
	cmd.Flags().StringVar(&opts.VMDir, "dir", "", "directory to create the VM under")
	cmd.Flags().UintVarP(&opts.MemoryMiB, "memory", "m", 4096, "guest memory in MiB")
	cmd.Flags().UintVarP(&opts.Vcpus, "cpus", "c", 2, "number of virtual CPUs")
	cmd.Flags().StringVar(&opts.DiskPath, "disk", "", "backing disk path, created if missing")
	cmd.Flags().StringVar(&opts.DiskFormat, "disk-format", config.DiskFormatVHDX, "disk format (VHD, VHDX, VMDK)")
	cmd.Flags().UintVar(&opts.DiskSizeGiB, "disk-size", 64, "disk size in GiB when the disk is created")
	cmd.Flags().StringVar(&opts.BootISOPath, "boot-iso", "", "installation ISO to attach")
	cmd.Flags().BoolVar(&opts.EnableTPM, "tpm", false, "add a virtual TPM device")
	cmd.Flags().BoolVar(&opts.EnableSecureBoot, "secure-boot", false, "enable UEFI secure boot")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("dir")
}

// AddHandleFlag registers the flag locating the handle file written by
// `hvkit create`.
func AddHandleFlag(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.HandlePath, "handle", "", "path to the VM handle file")
	_ = cmd.MarkFlagRequired("handle")
}

// ToVMConfig converts the create flags into a virtual machine descriptor.
func (opts *Options) ToVMConfig() (*config.VirtualMachine, error) {
	if opts.VMName == "" || opts.VMDir == "" {
		return nil, fmt.Errorf("both --name and --dir are required")
	}
	return &config.VirtualMachine{
		Name:             opts.VMName,
		Dir:              opts.VMDir,
		Memory:           strongunits.MiB(opts.MemoryMiB).ToBytes(),
		Processors:       opts.Vcpus,
		DiskPath:         opts.DiskPath,
		DiskFormat:       opts.DiskFormat,
		DiskSize:         strongunits.GiB(opts.DiskSizeGiB).ToBytes(),
		BootISOPath:      opts.BootISOPath,
		EnableTPM:        opts.EnableTPM,
		EnableSecureBoot: opts.EnableSecureBoot,
	}, nil
}
