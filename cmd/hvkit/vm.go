package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/winfab/hvkit/pkg/cmdline"
	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/provider"
	"github.com/winfab/hvkit/pkg/selector"
)

func selectorOptions() selector.Options {
	return selector.Options{
		Logger:          log.StandardLogger(),
		ControlPlaneURL: opts.ControlPlaneURL,
		Username:        opts.Username,
		Password:        os.Getenv("HVKIT_VMREST_PASSWORD"),
	}
}

func getProvider() (provider.Provider, error) {
	return selector.Get(opts.Backend, selectorOptions())
}

func providerForHandle() (provider.Provider, *config.Handle, error) {
	h, err := config.LoadHandle(opts.HandlePath)
	if err != nil {
		return nil, nil, err
	}
	p, err := selector.ForHandle(h, selectorOptions())
	if err != nil {
		return nil, nil, err
	}
	return p, h, nil
}

// saveHandle persists handle mutations made by the provider (cached IDs,
// observed state) so the next invocation starts from them.
func saveHandle(h *config.Handle) {
	if err := config.SaveHandle(h, opts.HandlePath); err != nil {
		log.Warnf("failed to update handle file: %v", err)
	}
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report availability of the selected backend, or of all backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		backends := []string{opts.Backend}
		if opts.Backend == "" || opts.Backend == selector.Auto {
			backends = []string{config.BackendHyperV, config.BackendVMware}
		}
		for _, name := range backends {
			p, err := selector.New(name, selectorOptions())
			if err != nil {
				return err
			}
			avail := p.AvailabilityDetails()
			fmt.Printf("backend: %s\navailable: %v\n", p.Name(), avail.Available)
			for key, value := range avail.Details {
				fmt.Printf("  %s: %s\n", key, value)
			}
			for _, issue := range avail.Issues {
				fmt.Printf("  issue: %s\n", issue)
			}
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a virtual machine and write its handle file",
	RunE: func(cmd *cobra.Command, args []string) error {
		vm, err := opts.ToVMConfig()
		if err != nil {
			return err
		}
		p, err := getProvider()
		if err != nil {
			return err
		}
		h, err := p.CreateVM(vm)
		if err != nil {
			return err
		}
		if opts.HandlePath == "" {
			opts.HandlePath = filepath.Join(h.VMDir(), vm.Name+".handle.json")
		}
		if err := config.SaveHandle(h, opts.HandlePath); err != nil {
			return err
		}
		log.Infof("created VM %q on %s, handle written to %s", h.Name, h.Backend, opts.HandlePath)
		return nil
	},
}

var startConsole bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the virtual machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, h, err := providerForHandle()
		if err != nil {
			return err
		}
		if err := p.StartVM(h, startConsole); err != nil {
			return err
		}
		saveHandle(h)
		return nil
	},
}

var stopForce bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the virtual machine, gracefully unless --force",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, h, err := providerForHandle()
		if err != nil {
			return err
		}
		if err := p.StopVM(h, stopForce); err != nil {
			return err
		}
		saveHandle(h)
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the virtual machine's lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, h, err := providerForHandle()
		if err != nil {
			return err
		}
		fmt.Println(p.GetVMState(h))
		saveHandle(h)
		return nil
	},
}

var ipTimeout time.Duration

var ipCmd = &cobra.Command{
	Use:   "ip",
	Short: "Print the guest's IPv4 address, waiting up to --timeout",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, h, err := providerForHandle()
		if err != nil {
			return err
		}
		ip, err := p.GetVMIPAddress(h, ipTimeout)
		if err != nil {
			return err
		}
		if ip == "" {
			return fmt.Errorf("no IP address reported within %s", ipTimeout)
		}
		fmt.Println(ip)
		return nil
	},
}

var keepDisks bool

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the virtual machine and, by default, its disks",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, h, err := providerForHandle()
		if err != nil {
			return err
		}
		if err := p.RemoveVM(h, !keepDisks); err != nil {
			return err
		}
		if err := os.Remove(opts.HandlePath); err != nil && !os.IsNotExist(err) {
			log.Warnf("failed to remove handle file: %v", err)
		}
		return nil
	},
}

var attachISOCmd = &cobra.Command{
	Use:   "attach-iso iso-path",
	Short: "Attach an ISO to the virtual machine's optical drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, h, err := providerForHandle()
		if err != nil {
			return err
		}
		return p.AttachISO(h, args[0])
	},
}

var detachISOCmd = &cobra.Command{
	Use:   "detach-iso",
	Short: "Detach any ISO from the virtual machine's optical drive",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, h, err := providerForHandle()
		if err != nil {
			return err
		}
		return p.DetachISO(h)
	},
}

func init() {
	cmdline.AddCreateFlags(createCmd, opts)
	createCmd.Flags().StringVar(&opts.HandlePath, "handle", "", "where to write the handle file (default: inside the VM directory)")

	for _, cmd := range []*cobra.Command{startCmd, stopCmd, stateCmd, ipCmd, removeCmd, attachISOCmd, detachISOCmd} {
		cmdline.AddHandleFlag(cmd, opts)
	}
	startCmd.Flags().BoolVar(&startConsole, "console", false, "show the VM console instead of starting headless")
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "power off immediately instead of a guest shutdown")
	ipCmd.Flags().DurationVar(&ipTimeout, "timeout", 2*time.Minute, "how long to wait for the guest to report an address")
	removeCmd.Flags().BoolVar(&keepDisks, "keep-disks", false, "keep the VM directory and disks on disk")
}
