// Package process probes for backend daemon processes (vmrest.exe,
// vmware-vmx.exe, vmms.exe) so availability reports can say whether a
// control plane or management service is actually up.
package process

import (
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// FindByName reports whether a process with the given executable name is
// running, and its pid when found. Matching is case-insensitive because
// Windows reports executable names with inconsistent casing.
func FindByName(name string) (bool, int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return false, 0, err
	}
	for _, proc := range procs {
		procName, err := proc.Name()
		if err != nil {
			// processes can exit while we iterate
			continue
		}
		if strings.EqualFold(procName, name) {
			return true, proc.Pid, nil
		}
	}
	return false, 0, nil
}
