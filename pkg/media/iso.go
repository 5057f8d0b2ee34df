// Package media builds small ISO images used to hand provisioning data
// (unattend/answer files, first-boot scripts) to a guest: both backends can
// attach an ISO to a VM, so a generated ISO is the one injection channel that
// works identically everywhere.
package media

import (
	"fmt"
	"os"
	"sort"

	"github.com/kdomanski/iso9660"
)

// Build writes an ISO image at isoPath containing the given files, keyed by
// their path inside the image. label becomes the volume identifier.
func Build(isoPath, label string, files map[string]string) (retErr error) {
	if len(files) == 0 {
		return fmt.Errorf("refusing to build an empty ISO at %s", isoPath)
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Cleanup(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	// deterministic image layout regardless of map iteration order
	dests := make([]string, 0, len(files))
	for dest := range files {
		dests = append(dests, dest)
	}
	sort.Strings(dests)

	for _, dest := range dests {
		src, err := os.Open(files[dest])
		if err != nil {
			return err
		}
		err = writer.AddFile(src, dest)
		src.Close()
		if err != nil {
			return fmt.Errorf("adding %s to ISO: %w", dest, err)
		}
	}

	out, err := os.Create(isoPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	if err := writer.WriteTo(out, label); err != nil {
		return fmt.Errorf("writing ISO %s: %w", isoPath, err)
	}
	return nil
}
