// Package diskutil creates, mounts and dismounts virtual disks through the
// host's diskpart utility. It depends on no hypervisor integration, so disk
// operations keep working on hosts with no virtualization product installed.
package diskutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/containers/common/pkg/strongunits"
	"github.com/sirupsen/logrus"

	"github.com/winfab/hvkit/pkg/hostcmd"
)

// DiskpartExe is the host-level disk-partitioning utility.
const DiskpartExe = "diskpart"

// Manager drives diskpart through generated scripts.
type Manager struct {
	runner hostcmd.Runner
	log    *logrus.Logger

	// scriptDir overrides where script files are written; empty means the
	// system temp directory.
	scriptDir string
}

func New(runner hostcmd.Runner, log *logrus.Logger) *Manager {
	if runner == nil {
		runner = hostcmd.NewRunner(0)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{runner: runner, log: log}
}

// Create creates an expandable virtual disk at path. Only the VHD and VHDX
// formats are understood by diskpart; other formats are the owning backend's
// problem (the Workstation provider creates VMDK disks with its own tool).
func (m *Manager) Create(path string, size strongunits.B) error {
	ext := strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext != "VHD" && ext != "VHDX" {
		return fmt.Errorf("diskpart cannot create a %s disk (only VHD and VHDX)", ext)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	sizeMB := uint64(size) / (1024 * 1024)
	script := createScript(path, sizeMB)
	m.log.Debugf("creating %d MB virtual disk at %s", sizeMB, path)
	out, err := m.runScript(script)
	if err != nil {
		return fmt.Errorf("creating virtual disk %s: %s: %w", path, out, err)
	}
	return nil
}

// Mount attaches the virtual disk at path and returns the mount path diskpart
// assigned to its first volume.
func (m *Manager) Mount(path string) (string, error) {
	before, err := m.volumeLetters()
	if err != nil {
		return "", err
	}

	out, err := m.runScript(attachScript(path))
	if err != nil {
		return "", fmt.Errorf("attaching virtual disk %s: %s: %w", path, out, err)
	}

	after, err := m.volumeLetters()
	if err != nil {
		return "", err
	}
	for letter := range after {
		if !before[letter] {
			mountPath := letter + `:\`
			m.log.Debugf("virtual disk %s mounted at %s", path, mountPath)
			return mountPath, nil
		}
	}
	return "", fmt.Errorf("virtual disk %s attached but no new volume appeared", path)
}

// Dismount detaches the virtual disk at path. Detaching a disk that is not
// attached is not an error.
func (m *Manager) Dismount(path string) error {
	out, err := m.runScript(detachScript(path))
	if err != nil {
		if isNotAttached(out) {
			m.log.Debugf("virtual disk %s already dismounted", path)
			return nil
		}
		return fmt.Errorf("detaching virtual disk %s: %s: %w", path, out, err)
	}
	return nil
}

func (m *Manager) runScript(script string) (string, error) {
	dir := m.scriptDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "hvkit-diskpart-*.txt")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return m.runner.Run(DiskpartExe, "/s", f.Name())
}

func (m *Manager) volumeLetters() (map[string]bool, error) {
	out, err := m.runScript("list volume\n")
	if err != nil {
		return nil, fmt.Errorf("listing volumes: %s: %w", out, err)
	}
	return parseVolumeLetters(out), nil
}

func createScript(path string, sizeMB uint64) string {
	return fmt.Sprintf("create vdisk file=\"%s\" maximum=%d type=expandable\n", path, sizeMB)
}

func attachScript(path string) string {
	return fmt.Sprintf("select vdisk file=\"%s\"\nattach vdisk\n", path)
}

func detachScript(path string) string {
	return fmt.Sprintf("select vdisk file=\"%s\"\ndetach vdisk\n", path)
}

func isNotAttached(output string) bool {
	return strings.Contains(strings.ToLower(output), "not attached")
}

// parseVolumeLetters extracts drive letters from diskpart "list volume"
// output. Lines look like:
//
//	Volume 2     E   media      CDFS   DVD-ROM     4025 MB  Healthy
func parseVolumeLetters(output string) map[string]bool {
	letters := map[string]bool{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || !strings.EqualFold(fields[0], "Volume") {
			continue
		}
		letter := fields[2]
		if len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'Z' {
			letters[letter] = true
		}
	}
	return letters
}
