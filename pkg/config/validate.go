package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationResult is the structured outcome of ValidateConfiguration. It is
// returned instead of an error so callers can decide to proceed past
// warnings (a downgraded security feature, a substituted disk format) while
// still refusing to proceed past errors.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// AddError records a fatal finding and marks the result invalid.
func (r *ValidationResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

// AddWarning records a non-fatal finding. Warnings never flip Valid.
func (r *ValidationResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Merge folds other into r. The merged result is valid only if both were.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Valid = r.Valid && other.Valid
}

func (r *ValidationResult) Summary() string {
	return strings.Join(r.Errors, "; ")
}

// Validate runs the backend-independent checks of a virtual machine
// configuration against a backend's capability declaration. Backends compose
// this result and append their own findings rather than reimplementing it.
func Validate(vm *VirtualMachine, caps Capabilities) *ValidationResult {
	result := NewValidationResult()

	if vm.Name == "" {
		result.AddError("virtual machine name must not be empty")
	} else if strings.ContainsAny(vm.Name, `/\:*?"<>|`) {
		result.AddError("virtual machine name %q contains characters unusable in a path", vm.Name)
	}
	if vm.Dir == "" {
		result.AddError("virtual machine directory must not be empty")
	}

	if vm.Memory == 0 {
		result.AddError("memory size must not be zero")
	} else if caps.MaxMemory > 0 && vm.Memory > caps.MaxMemory {
		result.AddError("memory size %d bytes exceeds the backend maximum of %d bytes", vm.Memory, caps.MaxMemory)
	}

	if vm.Processors == 0 {
		result.AddError("processor count must be at least 1")
	} else if caps.MaxProcessors > 0 && vm.Processors > caps.MaxProcessors {
		result.AddError("processor count %d exceeds the backend maximum of %d", vm.Processors, caps.MaxProcessors)
	}

	format := vm.NormalizedDiskFormat()
	if format == "" {
		result.AddError("disk format must not be empty")
	} else if !caps.SupportsDiskFormat(format) {
		result.AddError("disk format %s is not supported by this backend (supported: %s)",
			format, strings.Join(caps.DiskFormats, ", "))
	}

	if vm.EnableTPM && !caps.SupportsTPM {
		result.AddError("a virtual TPM was requested but this backend does not support one")
	}
	if vm.EnableSecureBoot && !caps.SupportsSecureBoot {
		result.AddError("secure boot was requested but this backend does not support it")
	}

	if vm.BootISOPath != "" && !strings.EqualFold(filepath.Ext(vm.BootISOPath), ".iso") {
		result.AddWarning("boot media %q does not look like an ISO image", vm.BootISOPath)
	}

	return result
}
