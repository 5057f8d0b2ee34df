// Package vmrest is a client for the Workstation HTTP control plane
// (vmrest.exe). The one classification that matters to callers is
// ErrUnauthorized: it is the only class of failure the provider is allowed
// to answer with the credential-free CLI fallback.
package vmrest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where vmrest.exe listens unless configured otherwise.
const DefaultBaseURL = "http://127.0.0.1:8697/api"

const contentType = "application/vnd.vmware.vmw.rest-v1+json"

// ErrUnauthorized classifies a 401/403 answer from the control plane.
// Callers test for it with errors.Is before deciding to fall back.
var ErrUnauthorized = errors.New("control plane rejected the credentials")

// VM is a control-plane inventory entry. Path is the VMX descriptor path,
// which is the identity the rest of this layer trusts.
type VM struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// New returns a client for the control plane at baseURL (DefaultBaseURL when
// empty), authenticating with the supplied credentials.
func New(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path, body string) ([]byte, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", contentType)
	if body != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("control plane unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode >= 400:
		// the control plane's own diagnostic text travels verbatim
		return nil, fmt.Errorf("%s %s: control plane returned %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// Ping verifies the control plane is reachable and the credentials work.
func (c *Client) Ping() error {
	_, err := c.do(http.MethodGet, "/vms", "")
	return err
}

// VMs lists the control plane's VM inventory.
func (c *Client) VMs() ([]VM, error) {
	data, err := c.do(http.MethodGet, "/vms", "")
	if err != nil {
		return nil, err
	}
	var vms []VM
	if err := json.Unmarshal(data, &vms); err != nil {
		return nil, fmt.Errorf("unparseable inventory answer: %w", err)
	}
	return vms, nil
}

// FindByPath returns the inventory id of the VM whose descriptor path
// matches vmxPath, or "" when the inventory does not know the path.
// Comparison is case-insensitive: these are Windows paths.
func (c *Client) FindByPath(vmxPath string) (string, error) {
	vms, err := c.VMs()
	if err != nil {
		return "", err
	}
	for _, vm := range vms {
		if strings.EqualFold(vm.Path, vmxPath) {
			return vm.ID, nil
		}
	}
	return "", nil
}

// PowerState returns the backend's power state string ("poweredOn", ...).
func (c *Client) PowerState(id string) (string, error) {
	data, err := c.do(http.MethodGet, "/vms/"+id+"/power", "")
	if err != nil {
		return "", err
	}
	var answer struct {
		PowerState string `json:"power_state"`
	}
	if err := json.Unmarshal(data, &answer); err != nil {
		return "", fmt.Errorf("unparseable power state answer: %w", err)
	}
	return answer.PowerState, nil
}

// SetPower requests a power operation: "on", "off", "shutdown", "suspend".
func (c *Client) SetPower(id, operation string) error {
	_, err := c.do(http.MethodPut, "/vms/"+id+"/power", operation)
	return err
}

// IP returns the guest's IP address, if the control plane knows it yet.
func (c *Client) IP(id string) (string, error) {
	data, err := c.do(http.MethodGet, "/vms/"+id+"/ip", "")
	if err != nil {
		return "", err
	}
	var answer struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(data, &answer); err != nil {
		return "", fmt.Errorf("unparseable ip answer: %w", err)
	}
	return answer.IP, nil
}

// Delete removes the VM from the control plane's inventory.
func (c *Client) Delete(id string) error {
	_, err := c.do(http.MethodDelete, "/vms/"+id, "")
	return err
}
