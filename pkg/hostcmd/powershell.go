package hostcmd

// PowerShellExe is the interpreter used for all native-management commands.
const PowerShellExe = "powershell.exe"

// PowerShell runs scripts through the Windows PowerShell interpreter in
// non-interactive mode.
type PowerShell struct {
	runner Runner
}

func NewPowerShell(runner Runner) *PowerShell {
	if runner == nil {
		runner = NewRunner(0)
	}
	return &PowerShell{runner: runner}
}

// Run executes script and returns its combined output.
func (ps *PowerShell) Run(script string) (string, error) {
	return ps.runner.Run(PowerShellExe, PowerShellArgs(script)...)
}

// PowerShellArgs returns the interpreter arguments used to run script.
func PowerShellArgs(script string) []string {
	return []string{
		"-NoProfile",
		"-NonInteractive",
		"-ExecutionPolicy", "Bypass",
		"-Command", script,
	}
}
