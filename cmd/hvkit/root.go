package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/winfab/hvkit/pkg/cmdline"
)

const hvkitVersion = "0.1.0"

var opts = &cmdline.Options{}

var rootCmd = &cobra.Command{
	Use:   "hvkit",
	Short: "hvkit drives Hyper-V and VMware Workstation virtual machines through one lifecycle contract",
	Long: `hvkit creates, runs and tears down Windows virtual machines on whichever
hypervisor the host carries, Hyper-V or VMware Workstation, behind a single
command surface suited to unattended image-build automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(opts.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
		}
		log.SetLevel(level)
		return nil
	},
	Version: hvkitVersion,
}

func init() {
	cmdline.AddGlobalFlags(rootCmd, opts)

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(ipCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(attachISOCmd)
	rootCmd.AddCommand(detachISOCmd)
	rootCmd.AddCommand(diskCmd)

	versionTmpl := `{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version: %s" .Version}}
`
	rootCmd.SetVersionTemplate(versionTmpl)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
