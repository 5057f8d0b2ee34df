package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/winfab/hvkit/pkg/config"
)

func TestConfigurationErrorMessage(t *testing.T) {
	result := config.NewValidationResult()
	result.AddError("disk format VHDX is not supported by this backend")

	err := &ConfigurationError{Result: result}
	assert.Contains(t, err.Error(), "VHDX")
}

func TestUnavailableErrorListsEveryIssue(t *testing.T) {
	err := &UnavailableError{
		Backend: config.BackendVMware,
		Issues:  []string{"vmrun.exe not found", "control plane credentials not configured"},
	}
	assert.Contains(t, err.Error(), "vmrun.exe not found")
	assert.Contains(t, err.Error(), "credentials not configured")
}

func TestOperationErrorPreservesBackendOutput(t *testing.T) {
	cause := errors.New("exit status 255")
	err := &OperationError{
		Op:      "stop",
		VM:      "build01",
		Backend: config.BackendVMware,
		Output:  "Error: The virtual machine is not powered on",
		Err:     cause,
	}
	assert.Contains(t, err.Error(), "The virtual machine is not powered on")
	assert.True(t, errors.Is(err, cause))

	var opErr *OperationError
	assert.True(t, errors.As(err, &opErr))
}
