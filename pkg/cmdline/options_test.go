package cmdline

import (
	"testing"

	"github.com/containers/common/pkg/strongunits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToVMConfig(t *testing.T) {
	opts := &Options{
		VMName:      "win11",
		VMDir:       "D:\\vms",
		MemoryMiB:   8192,
		Vcpus:       4,
		DiskFormat:  "vhdx",
		DiskSizeGiB: 80,
		EnableTPM:   true,
	}
	vm, err := opts.ToVMConfig()
	require.NoError(t, err)
	assert.Equal(t, "win11", vm.Name)
	assert.Equal(t, strongunits.GiB(8).ToBytes(), vm.Memory)
	assert.Equal(t, uint(4), vm.Processors)
	assert.Equal(t, "VHDX", vm.NormalizedDiskFormat())
	assert.Equal(t, strongunits.GiB(80).ToBytes(), vm.DiskSize)
	assert.True(t, vm.EnableTPM)
	assert.False(t, vm.EnableSecureBoot)
}

func TestToVMConfigRequiresNameAndDir(t *testing.T) {
	_, err := (&Options{VMName: "win11"}).ToVMConfig()
	require.Error(t, err)
	_, err = (&Options{VMDir: "D:\\vms"}).ToVMConfig()
	require.Error(t, err)
}
