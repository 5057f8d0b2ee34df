package hostcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	name string
	args []string
	out  string
	err  error
}

func (r *recordingRunner) Run(name string, args ...string) (string, error) {
	r.name = name
	r.args = args
	return r.out, r.err
}

func TestPowerShellRunUsesNonInteractiveInterpreter(t *testing.T) {
	runner := &recordingRunner{out: "Running"}
	ps := NewPowerShell(runner)

	out, err := ps.Run("(Get-VM -Name build01).State")
	require.NoError(t, err)
	assert.Equal(t, "Running", out)
	assert.Equal(t, PowerShellExe, runner.name)
	assert.Equal(t, []string{
		"-NoProfile",
		"-NonInteractive",
		"-ExecutionPolicy", "Bypass",
		"-Command", "(Get-VM -Name build01).State",
	}, runner.args)
}

func TestLookPathReportsMissingBinaryByName(t *testing.T) {
	_, err := LookPath("definitely-not-a-real-binary-4242")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitely-not-a-real-binary-4242")
}
