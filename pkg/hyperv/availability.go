package hyperv

import (
	"fmt"
	"strings"

	"github.com/winfab/hvkit/pkg/hostcmd"
	"github.com/winfab/hvkit/pkg/provider"
	"github.com/winfab/hvkit/pkg/vmstate"
)

func (p *Provider) TestAvailable() bool {
	return p.AvailabilityDetails().Available
}

// AvailabilityDetails itemizes every unmet requirement for driving Hyper-V:
// the interpreter, the management module, the management service and an
// elevated token.
func (p *Provider) AvailabilityDetails() *provider.Availability {
	avail := provider.NewAvailability()

	psPath, err := p.lookPath(hostcmd.PowerShellExe)
	if err != nil {
		avail.AddIssue(true, fmt.Sprintf("%s not found on PATH", hostcmd.PowerShellExe))
		return avail
	}
	avail.Details["powershell"] = psPath

	out, err := p.ps.Run("(Get-Module -ListAvailable Hyper-V).Name")
	if err != nil || !strings.Contains(out, "Hyper-V") {
		avail.AddIssue(true, "the Hyper-V PowerShell module is not installed (enable the Hyper-V Windows feature)")
	} else {
		avail.Details["hyperv-module"] = "installed"
	}

	out, err = p.ps.Run("(Get-Service vmms).Status")
	switch {
	case err != nil:
		avail.AddIssue(true, "the Hyper-V Virtual Machine Management service (vmms) is not installed")
	case !vmstate.IsRunning(vmstate.Normalize(out)):
		avail.AddIssue(true, fmt.Sprintf("the Hyper-V Virtual Machine Management service (vmms) is %s, not Running", strings.TrimSpace(out)))
	default:
		avail.Details["vmms"] = "Running"
	}

	if !isElevated() {
		avail.AddIssue(true, "Hyper-V management requires an elevated (administrator) process")
	}

	return avail
}
