package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/winfab/hvkit/pkg/media"
)

var isoLabel string

var isoCmd = &cobra.Command{
	Use:   "iso output.iso file...",
	Short: "Build a provisioning ISO from the given files",
	Long: `Builds an ISO image carrying provisioning data (unattend files, first-boot
scripts) for attachment to a virtual machine. Each file argument is either a
plain path, placed at the image root under its base name, or dest=src to
control the path inside the image.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := map[string]string{}
		for _, arg := range args[1:] {
			dest, src, found := strings.Cut(arg, "=")
			if !found {
				src = arg
				dest = filepath.Base(arg)
			}
			if prev, dup := files[dest]; dup {
				return fmt.Errorf("both %s and %s map to %s inside the image", prev, src, dest)
			}
			files[dest] = src
		}
		return media.Build(args[0], isoLabel, files)
	},
}

func init() {
	isoCmd.Flags().StringVar(&isoLabel, "label", "hvkit-provision", "ISO volume label")
	rootCmd.AddCommand(isoCmd)
}
