package vmware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/containers/common/pkg/strongunits"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/diskutil"
	"github.com/winfab/hvkit/pkg/provider"
	"github.com/winfab/hvkit/pkg/vmstate"
)

const (
	cpUser = "vmrest"
	cpPass = "Secret1!"
	cpVMID = "QGC1P66CTP5D3GVCIVSJ1U8LBL3MP5NC"
)

// cmdRecorder fakes every host tool the provider shells out to.
type cmdRecorder struct {
	cmds    [][]string
	respond func(exe string, args []string) (string, error)
}

func (r *cmdRecorder) Run(name string, args ...string) (string, error) {
	r.cmds = append(r.cmds, append([]string{name}, args...))
	if r.respond != nil {
		return r.respond(name, args)
	}
	return "", nil
}

func (r *cmdRecorder) saw(substr string) bool {
	for _, cmd := range r.cmds {
		if strings.Contains(strings.Join(cmd, " "), substr) {
			return true
		}
	}
	return false
}

func newTestProvider(opts Options, respond func(string, []string) (string, error)) (*Provider, *cmdRecorder) {
	rec := &cmdRecorder{respond: respond}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.VMRunPath == "" {
		opts.VMRunPath = VMRunExe
	}
	p := New(opts)
	p.runner = rec
	p.vmrun = newVMRun(rec, opts.VMRunPath)
	p.disks = diskutil.New(rec, opts.Logger)
	p.lookPath = func(name string, candidates ...string) (string, error) {
		return name, nil
	}
	p.pollInterval = time.Millisecond
	p.graceDelay = 0
	return p, rec
}

func wsVM(dir string) *config.VirtualMachine {
	return &config.VirtualMachine{
		Name:       "build01",
		Dir:        dir,
		Memory:     strongunits.GiB(8).ToBytes(),
		Processors: 4,
		DiskFormat: config.DiskFormatVMDK,
	}
}

// controlPlaneBehavior configures the fake vmrest answers per test.
type controlPlaneBehavior struct {
	vmxPath     string
	powerStatus int    // status for PUT /vms/:id/power; 0 means 200
	powerBody   string // body for non-200 power answers
	powerState  string // answer for GET /vms/:id/power
}

func fakeControlPlane(t *testing.T, behavior controlPlaneBehavior) string {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/api/vms", func(c *gin.Context) {
		c.JSON(http.StatusOK, []gin.H{{"id": cpVMID, "path": behavior.vmxPath}})
	})
	r.GET("/api/vms/:id/power", func(c *gin.Context) {
		state := behavior.powerState
		if state == "" {
			state = "poweredOff"
		}
		c.JSON(http.StatusOK, gin.H{"power_state": state})
	})
	r.PUT("/api/vms/:id/power", func(c *gin.Context) {
		if behavior.powerStatus != 0 {
			c.String(behavior.powerStatus, behavior.powerBody)
			return
		}
		c.JSON(http.StatusOK, gin.H{"power_state": "poweredOff"})
	})
	r.DELETE("/api/vms/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func wsHandle(vmxPath string) *config.Handle {
	return &config.Handle{
		Name:           "build01",
		Backend:        config.BackendVMware,
		DescriptorPath: vmxPath,
		LastState:      vmstate.Off,
	}
}

func TestCreateVMYieldsOffVMAddressedByDescriptorPath(t *testing.T) {
	dir := t.TempDir()
	p, rec := newTestProvider(Options{}, nil)

	handle, err := p.CreateVM(wsVM(dir))
	require.NoError(t, err)

	assert.Equal(t, config.BackendVMware, handle.Backend)
	assert.Empty(t, handle.ID, "inventory registration is skipped on purpose")
	assert.Equal(t, filepath.Join(dir, "build01", "build01.vmx"), handle.DescriptorPath)
	assert.FileExists(t, handle.DescriptorPath)
	assert.True(t, rec.saw("vmware-vdiskmanager"), "the backing VMDK should be created")

	// no control plane credentials configured: state comes from vmrun list
	assert.Equal(t, vmstate.Off, p.GetVMState(handle))
}

func TestCreateVMRefusesDescriptorCollision(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestProvider(Options{}, nil)
	_, err := p.CreateVM(wsVM(dir))
	require.NoError(t, err)

	_, err = p.CreateVM(wsVM(dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

// A VHDX configuration must fail validation before anything is created,
// with an error naming the format.
func TestValidateConfigurationRejectsVHDX(t *testing.T) {
	p, rec := newTestProvider(Options{}, nil)
	vm := wsVM(t.TempDir())
	vm.DiskFormat = config.DiskFormatVHDX

	result := p.ValidateConfiguration(vm)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Summary(), "VHDX")

	_, err := p.CreateVM(vm)
	var cfgErr *provider.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, rec.cmds, "nothing may be created for an invalid configuration")
}

// A TPM request is downgraded with a warning, and the created descriptor
// has the feature disabled.
func TestTPMRequestIsDowngradedNotRejected(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestProvider(Options{}, nil)
	vm := wsVM(dir)
	vm.EnableTPM = true

	result := p.ValidateConfiguration(vm)
	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	tpmWarning := ""
	for _, w := range result.Warnings {
		if strings.Contains(w, "TPM") {
			tpmWarning = w
		}
	}
	require.NotEmpty(t, tpmWarning)
	assert.Contains(t, tpmWarning, "real hardware")

	handle, err := p.CreateVM(vm)
	require.NoError(t, err)
	v, err := loadVMX(handle.DescriptorPath)
	require.NoError(t, err)
	assert.Empty(t, v.get("vtpm.present"))
}

func TestVHDDiskFormatIsSubstitutedWithWarning(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestProvider(Options{}, nil)
	vm := wsVM(dir)
	vm.DiskFormat = config.DiskFormatVHD
	vm.DiskPath = filepath.Join(dir, "build01", "build01.vhd")

	result := p.ValidateConfiguration(vm)
	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "VMDK")

	handle, err := p.CreateVM(vm)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "build01", "build01.vmdk"), handle.DiskPath)

	v, err := loadVMX(handle.DescriptorPath)
	require.NoError(t, err)
	assert.Equal(t, handle.DiskPath, v.get("nvme0:0.fileName"))
}

// An unauthorized answer from the control plane must transparently retry
// through vmrun; any other rejection must surface unchanged.
func TestStopVMFallsBackOnUnauthorizedOnly(t *testing.T) {
	vmx := `C:\vms\build01\build01.vmx`

	t.Run("unauthorized triggers fallback", func(t *testing.T) {
		url := fakeControlPlane(t, controlPlaneBehavior{
			vmxPath:     vmx,
			powerStatus: http.StatusUnauthorized,
			powerBody:   "Authentication failed",
		})
		p, rec := newTestProvider(Options{ControlPlaneURL: url, Username: cpUser, Password: cpPass}, nil)

		require.NoError(t, p.StopVM(wsHandle(vmx), true))
		assert.True(t, rec.saw("stop "+vmx+" hard"), "the vmrun channel should have finished the stop")
	})

	t.Run("non-auth failure propagates", func(t *testing.T) {
		url := fakeControlPlane(t, controlPlaneBehavior{
			vmxPath:     vmx,
			powerStatus: http.StatusNotFound,
			powerBody:   "The virtual machine is not found",
		})
		p, rec := newTestProvider(Options{ControlPlaneURL: url, Username: cpUser, Password: cpPass}, nil)

		err := p.StopVM(wsHandle(vmx), true)
		require.Error(t, err)
		var opErr *provider.OperationError
		require.True(t, errors.As(err, &opErr))
		assert.Contains(t, err.Error(), "The virtual machine is not found")
		assert.False(t, rec.saw("stop "), "a non-auth failure must not trigger the fallback")
	})
}

func TestStopVMGracefulAndForcedAreDistinctCommands(t *testing.T) {
	vmx := `C:\vms\build01\build01.vmx`
	p, rec := newTestProvider(Options{}, nil)

	require.NoError(t, p.StopVM(wsHandle(vmx), false))
	require.NoError(t, p.StopVM(wsHandle(vmx), true))
	assert.True(t, rec.saw("stop "+vmx+" soft"))
	assert.True(t, rec.saw("stop "+vmx+" hard"))
}

func TestStartVMHeadlessAndConsole(t *testing.T) {
	vmx := `C:\vms\build01\build01.vmx`
	p, rec := newTestProvider(Options{}, nil)

	require.NoError(t, p.StartVM(wsHandle(vmx), false))
	assert.True(t, rec.saw("start "+vmx+" nogui"))

	require.NoError(t, p.StartVM(wsHandle(vmx), true))
	assert.True(t, rec.saw("start "+vmx+" gui"))
}

// A handle whose only populated identity is its descriptor path must work
// for every operation: that is the normal case for this backend.
func TestPathOnlyHandleResolvesEverywhere(t *testing.T) {
	dir := t.TempDir()
	vmDir := filepath.Join(dir, "build01")
	require.NoError(t, os.MkdirAll(vmDir, 0755))
	vmx := filepath.Join(vmDir, "build01.vmx")
	require.NoError(t, generateVMX(wsVM(dir), vmx, "build01.vmdk", false).save())

	p, _ := newTestProvider(Options{}, func(exe string, args []string) (string, error) {
		if len(args) >= 3 && args[2] == "list" {
			return "Total running VMs: 1\n" + vmx, nil
		}
		if len(args) >= 3 && args[2] == "getGuestIPAddress" {
			return "192.168.79.130", nil
		}
		return "", nil
	})

	h := &config.Handle{Backend: config.BackendVMware, DescriptorPath: vmx}
	require.NoError(t, p.StartVM(h, false))
	assert.Equal(t, vmstate.Running, p.GetVMState(h))

	ip, err := p.GetVMIPAddress(h, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "192.168.79.130", ip)

	require.NoError(t, p.AttachISO(h, `C:\media\drivers.iso`))
	require.NoError(t, p.DetachISO(h))
	require.NoError(t, p.StopVM(h, false))
}

func TestGetVMStateViaControlPlane(t *testing.T) {
	vmx := `C:\vms\build01\build01.vmx`
	url := fakeControlPlane(t, controlPlaneBehavior{vmxPath: vmx, powerState: "poweredOn"})
	p, _ := newTestProvider(Options{ControlPlaneURL: url, Username: cpUser, Password: cpPass}, nil)

	h := wsHandle(vmx)
	assert.Equal(t, vmstate.Running, p.GetVMState(h))
	assert.Equal(t, cpVMID, h.ID, "the discovered inventory id should be cached")
}

func TestGetVMStateNeverErrors(t *testing.T) {
	p, _ := newTestProvider(Options{}, func(exe string, args []string) (string, error) {
		return "vmrun has crashed", errors.New("exit status 255")
	})
	assert.Equal(t, vmstate.Unknown, p.GetVMState(wsHandle(`C:\vms\x\x.vmx`)))

	foreign := &config.Handle{Backend: config.BackendHyperV, Name: "x"}
	assert.Equal(t, vmstate.Unknown, p.GetVMState(foreign))
}

func TestGetVMIPAddressTimesOutWithEmptyResult(t *testing.T) {
	p, _ := newTestProvider(Options{}, func(exe string, args []string) (string, error) {
		return "Error: Unable to get the IP address", errors.New("exit status 255")
	})
	ip, err := p.GetVMIPAddress(wsHandle(`C:\vms\build01\build01.vmx`), 5*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, ip)
}

func TestRemoveVMLeavesNoDirectoryBehind(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestProvider(Options{}, nil)

	handle, err := p.CreateVM(wsVM(dir))
	require.NoError(t, err)
	// fake vdiskmanager does not really create files; fake the disk
	require.NoError(t, os.WriteFile(handle.DiskPath, []byte("vmdk"), 0644))

	require.NoError(t, p.RemoveVM(handle, true))
	_, err = os.Stat(filepath.Join(dir, "build01"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveVMSurvivesDeregistrationFailure(t *testing.T) {
	dir := t.TempDir()
	vmDir := filepath.Join(dir, "build01")
	require.NoError(t, os.MkdirAll(vmDir, 0755))
	vmx := filepath.Join(vmDir, "build01.vmx")
	require.NoError(t, os.WriteFile(vmx, []byte(".encoding = \"UTF-8\"\n"), 0644))

	// control plane that rejects everything
	url := fakeControlPlane(t, controlPlaneBehavior{vmxPath: "", powerStatus: http.StatusUnauthorized})
	p, _ := newTestProvider(Options{ControlPlaneURL: url, Username: cpUser, Password: "wrong"}, nil)

	require.NoError(t, p.RemoveVM(wsHandle(vmx), true))
	_, err := os.Stat(vmDir)
	assert.True(t, os.IsNotExist(err), "directory absence is the success signal")
}

func TestAvailabilityDetailsWithoutVMRun(t *testing.T) {
	p, _ := newTestProvider(Options{}, nil)
	p.opts.VMRunPath = ""
	p.lookPath = func(name string, candidates ...string) (string, error) {
		return "", fmt.Errorf("%s not found", name)
	}
	avail := p.AvailabilityDetails()
	assert.False(t, avail.Available)
	require.NotEmpty(t, avail.Issues)
	assert.Contains(t, avail.Issues[0], VMRunExe)
	assert.False(t, p.TestAvailable())
}

func TestAvailabilityDetailsVersionGate(t *testing.T) {
	p, _ := newTestProvider(Options{}, func(exe string, args []string) (string, error) {
		if len(args) == 0 {
			return "vmrun version 1.14.2 build-17801498", nil
		}
		return "", nil
	})
	avail := p.AvailabilityDetails()
	assert.False(t, avail.Available)
	found := false
	for _, issue := range avail.Issues {
		if strings.Contains(issue, "too old") {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, "1.14.2", avail.Details["vmrun-version"])
}

func TestAvailabilityNotesMissingCredentials(t *testing.T) {
	p, _ := newTestProvider(Options{}, func(exe string, args []string) (string, error) {
		if len(args) == 0 {
			return "vmrun version 1.17.0 build-24583834", nil
		}
		return "", nil
	})
	avail := p.AvailabilityDetails()
	assert.True(t, avail.Available, "a missing control plane degrades, it does not disable")
	found := false
	for _, issue := range avail.Issues {
		if strings.Contains(issue, "credentials") {
			found = true
		}
	}
	assert.True(t, found)
}
