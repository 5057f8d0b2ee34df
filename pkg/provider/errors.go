package provider

import (
	"fmt"
	"strings"

	"github.com/winfab/hvkit/pkg/config"
)

// ConfigurationError reports that validation rejected a configuration before
// any resource was created. Fully recoverable; nothing to undo.
type ConfigurationError struct {
	Result *config.ValidationResult
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid virtual machine configuration: %s", e.Result.Summary())
}

// UnavailableError reports that a backend cannot service operations at all:
// control channel unreachable, binary missing, credentials absent.
type UnavailableError struct {
	Backend string
	Issues  []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend %s is not available: %s", e.Backend, strings.Join(e.Issues, "; "))
}

// ResolutionError reports that a VM handle could not be mapped to an identity
// the backend can address, which usually means a stale or foreign handle.
type ResolutionError struct {
	Name    string
	Backend string
	Reason  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve VM %q for backend %s: %s", e.Name, e.Backend, e.Reason)
}

// OperationError reports that the backend rejected a lifecycle command.
// Output preserves the backend's own diagnostic text verbatim.
type OperationError struct {
	Op      string
	VM      string
	Backend string
	Output  string
	Err     error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s failed for VM %q on backend %s", e.Op, e.VM, e.Backend)
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Output)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
