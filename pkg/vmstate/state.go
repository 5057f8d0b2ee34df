// Package vmstate defines the lifecycle states a virtual machine can be in,
// along with helpers to compare them safely across process boundaries.
//
// States are backed by stable string names rather than numeric enums so that
// isolated callers (background workers, remote pipeline stages) can compare a
// state by value without importing this package's type identity.
package vmstate

import "strings"

// State is the last-observed lifecycle state of a virtual machine.
type State string

const (
	Off       State = "Off"
	Starting  State = "Starting"
	Running   State = "Running"
	Stopping  State = "Stopping"
	Paused    State = "Paused"
	Saved     State = "Saved"
	Saving    State = "Saving"
	Restoring State = "Restoring"
	Suspended State = "Suspended"
	Unknown   State = "Unknown"
)

func (s State) String() string {
	return string(s)
}

// Equal compares two states by their normalized string value.
func Equal(a, b State) bool {
	return strings.EqualFold(string(a), string(b))
}

func IsOff(s State) bool       { return Equal(s, Off) }
func IsRunning(s State) bool   { return Equal(s, Running) }
func IsPaused(s State) bool    { return Equal(s, Paused) }
func IsSaved(s State) bool     { return Equal(s, Saved) }
func IsSuspended(s State) bool { return Equal(s, Suspended) }
func IsUnknown(s State) bool   { return Equal(s, Unknown) }

// Normalize maps a backend-native state spelling to one of the State tokens.
// It understands the Hyper-V PowerShell enumeration names, the Workstation
// control-plane power states ("poweredOn", "poweredOff", ...) and the terse
// forms printed by command-line tools. Anything unrecognized maps to Unknown.
func Normalize(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "off", "stopped", "poweredoff", "powered off", "shutdown", "shut down":
		return Off
	case "starting":
		return Starting
	case "running", "poweredon", "powered on", "on":
		return Running
	case "stopping", "shuttingdown":
		return Stopping
	case "paused":
		return Paused
	case "saved":
		return Saved
	case "saving":
		return Saving
	case "restoring", "resuming":
		return Restoring
	case "suspended":
		return Suspended
	default:
		return Unknown
	}
}
