package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/clockwork-org/clockd/pkg/parser"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect and validate clockd manifests",
}

var manifestCheckCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Parse a manifest and report diagnostics without starting the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		warnColor := color.New(color.FgYellow)
		errColor := color.New(color.FgRed, color.Bold)
		okColor := color.New(color.FgGreen)
		if !isatty.IsTerminal(os.Stdout.Fd()) {
			color.NoColor = true
		}

		manifest, p, parseErr := parser.ParseFile(path)
		if parseErr != nil && p.ErrorCount() == 0 {
			// Failed with an error but no error diagnostic recorded.
			errColor.Fprintf(os.Stderr, "clockd: %v\n", parseErr)
			os.Exit(2)
		}

		for _, d := range p.Diagnostics() {
			if d.Warning {
				warnColor.Fprintln(os.Stderr, d.String())
			} else {
				errColor.Fprintln(os.Stderr, d.String())
			}
		}

		if p.ErrorCount() > 0 {
			errColor.Fprintf(os.Stderr, "%d error(s), %d warning(s)\n", p.ErrorCount(), p.WarningCount())
			os.Exit(2)
		}

		okColor.Printf("manifest %s is valid: %d host(s), %d policy(ies), %d warning(s)\n",
			path, len(manifest.Hosts), len(manifest.Policies), p.WarningCount())
		return nil
	},
}

func init() {
	manifestCmd.AddCommand(manifestCheckCmd)
}
