package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"itch-archiver/feature/integrity"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Flags for the verify command
	verifyFix  bool
	verifyYAML bool
	verifyRoot string
)

// verifyCmd checks the mirror against its sidecars without network access.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every mirrored file against its recorded checksum",
	Long: `Hashes every file in the mirror and compares it with its .md5 sidecar.

Reports mismatched files, files without a sidecar and sidecars without a file.
With --fix, the sidecars of mismatched files and orphan sidecars are removed so
the next download pass re-examines those files.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyFix, "fix", false, "Remove stale sidecars")
	verifyCmd.Flags().BoolVar(&verifyYAML, "yaml", false, "Print the report as YAML instead of JSON")
	verifyCmd.Flags().StringVar(&verifyRoot, "root", "", "Mirror root directory")

	RootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, logg, err := setup()
	if err != nil {
		return err
	}
	defer logg.Sync()

	root := cfg.Mirror.Root
	if cmd.Flags().Changed("root") {
		root = verifyRoot
	}

	report, err := integrity.NewService(root, logg).Verify(cmd.Context(), verifyFix)
	if err != nil {
		return err
	}

	if verifyYAML {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		_ = enc.Close()
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	}

	if !verifyFix && !report.Healthy() {
		return fmt.Errorf("mirror %s has files that no longer match their checksum", root)
	}
	return nil
}
