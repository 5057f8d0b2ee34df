package selector

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winfab/hvkit/pkg/config"
	"github.com/winfab/hvkit/pkg/provider"
)

func TestNormalizeAliases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hyperv", config.BackendHyperV},
		{"Hyper-V", config.BackendHyperV},
		{"native", config.BackendHyperV},
		{"vmware", config.BackendVMware},
		{"Workstation", config.BackendVMware},
		{"desktop-virtualization", config.BackendVMware},
		{"auto", Auto},
		{"", Auto},
		{"best", Auto},
		{"qemu", "qemu"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, normalize(test.in), "normalize(%q)", test.in)
	}
}

func TestGetAutoPrefersHyperV(t *testing.T) {
	p, err := Get(Auto, Options{Logger: logrus.New()})
	if err == nil {
		// host actually carries a hypervisor; preference order still holds
		assert.Contains(t, []string{config.BackendHyperV, config.BackendVMware}, p.Name())
		return
	}
	var unavailErr *provider.UnavailableError
	require.ErrorAs(t, err, &unavailErr)
	assert.Equal(t, Auto, unavailErr.Backend)
	require.Len(t, unavailErr.Issues, 2)
	assert.True(t, strings.HasPrefix(unavailErr.Issues[0], config.BackendHyperV+":"))
	assert.True(t, strings.HasPrefix(unavailErr.Issues[1], config.BackendVMware+":"))
}

func TestGetUnknownBackend(t *testing.T) {
	p, err := Get("qemu", Options{Logger: logrus.New()})
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "qemu")
	assert.Contains(t, err.Error(), config.BackendHyperV)
	assert.Contains(t, err.Error(), config.BackendVMware)
}

func TestForHandle(t *testing.T) {
	opts := Options{Logger: logrus.New()}

	p, err := ForHandle(&config.Handle{Name: "vm", Backend: config.BackendHyperV}, opts)
	require.NoError(t, err)
	assert.Equal(t, config.BackendHyperV, p.Name())

	p, err = ForHandle(&config.Handle{Name: "vm", Backend: config.BackendVMware}, opts)
	require.NoError(t, err)
	assert.Equal(t, config.BackendVMware, p.Name())
}

func TestForHandleUnknownBackend(t *testing.T) {
	_, err := ForHandle(&config.Handle{Name: "vm", Backend: "parallels"}, Options{Logger: logrus.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallels")
}
