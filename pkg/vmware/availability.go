package vmware

import (
	"fmt"
	"regexp"

	"golang.org/x/mod/semver"

	"github.com/winfab/hvkit/pkg/process"
	"github.com/winfab/hvkit/pkg/provider"
)

var vmrunVersionRe = regexp.MustCompile(`vmrun version (\d+\.\d+\.\d+)`)

func (p *Provider) TestAvailable() bool {
	return p.AvailabilityDetails().Available
}

// AvailabilityDetails itemizes every unmet requirement: the vmrun binary,
// its minimum version, and the state of the optional control plane. Missing
// control-plane pieces degrade the backend to the CLI channel but do not
// make it unavailable.
func (p *Provider) AvailabilityDetails() *provider.Availability {
	avail := provider.NewAvailability()

	exe := p.opts.VMRunPath
	if exe == "" {
		found, err := p.lookPath(VMRunExe, vmrunInstallCandidates...)
		if err != nil {
			avail.AddIssue(true, fmt.Sprintf("%s not found on PATH or in the Workstation install directory", VMRunExe))
			return avail
		}
		exe = found
	}
	avail.Details["vmrun"] = exe

	// vmrun without arguments prints a usage header carrying its version
	out, _ := p.runner.Run(exe)
	if m := vmrunVersionRe.FindStringSubmatch(out); m != nil {
		version := "v" + m[1]
		avail.Details["vmrun-version"] = m[1]
		if semver.Compare(version, minVMRunVersion) < 0 {
			avail.AddIssue(true, fmt.Sprintf("vmrun version %s is too old (need %s or newer)", m[1], minVMRunVersion))
		}
	} else {
		avail.AddIssue(false, "could not determine the vmrun version")
	}

	if p.opts.Username == "" {
		avail.AddIssue(false, "vmrest control plane credentials not configured; commands will use the vmrun fallback only")
	} else if running, pid, err := process.FindByName("vmrest.exe"); err == nil {
		if running {
			avail.Details["vmrest"] = fmt.Sprintf("running (pid %d)", pid)
		} else {
			avail.AddIssue(false, "vmrest.exe is not running; commands will use the vmrun fallback until it is started")
		}
	}

	return avail
}
