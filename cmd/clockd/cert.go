package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clockwork-org/clockd/pkg/security"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Generate clockd certificates",
}

var certGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a signing or encryption certificate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("id")
		outDir, _ := cmd.Flags().GetString("out")
		signing, _ := cmd.Flags().GetBool("signing")
		encryption, _ := cmd.Flags().GetBool("encryption")
		if identity == "" {
			return fmt.Errorf("--id is required")
		}
		if !signing && !encryption {
			signing, encryption = true, true
		}

		green := color.New(color.FgGreen)

		if signing {
			cert, err := security.GenerateSigning(identity)
			if err != nil {
				return fmt.Errorf("generating signing cert: %w", err)
			}
			path := outDir + "/" + identity + ".signing"
			if err := cert.WriteFile(path); err != nil {
				return fmt.Errorf("writing signing cert: %w", err)
			}
			green.Printf("wrote %s (signing, 0400)\n", path)
		}
		if encryption {
			cert, err := security.GenerateEncryption(identity)
			if err != nil {
				return fmt.Errorf("generating encryption cert: %w", err)
			}
			path := outDir + "/" + identity + ".encryption"
			if err := cert.WriteFile(path); err != nil {
				return fmt.Errorf("writing encryption cert: %w", err)
			}
			green.Printf("wrote %s (encryption, 0400)\n", path)
		}
		return nil
	},
}

func init() {
	certCmd.AddCommand(certGenerateCmd)
	certGenerateCmd.Flags().Bool("signing", false, "Generate a signing certificate")
	certGenerateCmd.Flags().Bool("encryption", false, "Generate an encryption certificate")
	certGenerateCmd.Flags().String("id", "", "Identity to embed in the certificate (required)")
	certGenerateCmd.Flags().String("out", ".", "Directory to write the generated certs into")
}
