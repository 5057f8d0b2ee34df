package vmware

import (
	"fmt"
	"strings"

	"github.com/winfab/hvkit/pkg/hostcmd"
)

// VMRunExe is the credential-free automation tool shipped with Workstation.
// It addresses VMs by descriptor path, which makes it the fallback channel
// when the control plane rejects or lacks credentials.
const VMRunExe = "vmrun.exe"

// vmrunInstallCandidates are probed when vmrun is not on PATH.
var vmrunInstallCandidates = []string{
	`C:\Program Files (x86)\VMware\VMware Workstation\vmrun.exe`,
	`C:\Program Files\VMware\VMware Workstation\vmrun.exe`,
}

type vmrunCLI struct {
	runner hostcmd.Runner
	exe    string
}

func newVMRun(runner hostcmd.Runner, exe string) *vmrunCLI {
	if exe == "" {
		exe = VMRunExe
	}
	return &vmrunCLI{runner: runner, exe: exe}
}

func (v *vmrunCLI) run(args ...string) (string, error) {
	return v.runner.Run(v.exe, append([]string{"-T", "ws"}, args...)...)
}

func (v *vmrunCLI) start(vmxPath string, gui bool) (string, error) {
	mode := "nogui"
	if gui {
		mode = "gui"
	}
	return v.run("start", vmxPath, mode)
}

func (v *vmrunCLI) stop(vmxPath string, hard bool) (string, error) {
	mode := "soft"
	if hard {
		mode = "hard"
	}
	return v.run("stop", vmxPath, mode)
}

func (v *vmrunCLI) deleteVM(vmxPath string) (string, error) {
	return v.run("deleteVM", vmxPath)
}

// list returns the descriptor paths of all running VMs. The first output
// line is a "Total running VMs: N" header.
func (v *vmrunCLI) list() ([]string, error) {
	out, err := v.run("list")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Total running VMs") {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

func (v *vmrunCLI) running(vmxPath string) (bool, error) {
	paths, err := v.list()
	if err != nil {
		return false, err
	}
	for _, p := range paths {
		if strings.EqualFold(p, vmxPath) {
			return true, nil
		}
	}
	return false, nil
}

// ip asks the guest tools for the VM's IP address. vmrun answers with either
// the bare address or an "Error: ..." line and a failing exit status.
func (v *vmrunCLI) ip(vmxPath string) (string, error) {
	out, err := v.run("getGuestIPAddress", vmxPath)
	if err != nil {
		return "", fmt.Errorf("getGuestIPAddress: %s: %w", out, err)
	}
	return strings.TrimSpace(out), nil
}
