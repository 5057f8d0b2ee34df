package process

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByNameFindsOurOwnProcess(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	found, pid, err := FindByName(filepath.Base(exe))
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotZero(t, pid)
}

func TestFindByNameMissesNonexistentProcess(t *testing.T) {
	found, pid, err := FindByName("no-such-daemon-4242.exe")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, pid)
}
