package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/containers/common/pkg/strongunits"
	"github.com/spf13/cobra"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/provider"
	"github.com/winfab/hvkit/pkg/selector"
)

// diskProvider picks the backend whose tooling owns the disk format when the
// user left the backend on auto. Disk operations run fine without a working
// hypervisor, so availability is not checked here.
func diskProvider(path string) (provider.Provider, error) {
	name := opts.Backend
	if name == "" || name == selector.Auto {
		if strings.EqualFold(filepath.Ext(path), ".vmdk") {
			name = config.BackendVMware
		} else {
			name = config.BackendHyperV
		}
	}
	return selector.New(name, selectorOptions())
}

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Create, mount and dismount virtual disks",
}

var diskSizeGiB uint

var diskCreateCmd = &cobra.Command{
	Use:   "create disk-path",
	Short: "Create an empty virtual disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := diskProvider(args[0])
		if err != nil {
			return err
		}
		return p.NewVirtualDisk(args[0], strongunits.GiB(diskSizeGiB).ToBytes())
	},
}

var diskMountCmd = &cobra.Command{
	Use:   "mount disk-path",
	Short: "Mount a virtual disk and print its mount path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := diskProvider(args[0])
		if err != nil {
			return err
		}
		mountPath, err := p.MountVirtualDisk(args[0])
		if err != nil {
			return err
		}
		fmt.Println(mountPath)
		return nil
	},
}

var diskDismountCmd = &cobra.Command{
	Use:   "dismount disk-path",
	Short: "Dismount a virtual disk; already dismounted is not an error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := diskProvider(args[0])
		if err != nil {
			return err
		}
		return p.DismountVirtualDisk(args[0])
	},
}

func init() {
	diskCreateCmd.Flags().UintVar(&diskSizeGiB, "size", 64, "disk size in GiB")
	diskCmd.AddCommand(diskCreateCmd)
	diskCmd.AddCommand(diskMountCmd)
	diskCmd.AddCommand(diskDismountCmd)
}
