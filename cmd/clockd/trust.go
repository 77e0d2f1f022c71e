package main

import (
	"encoding/hex"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clockwork-org/clockd/pkg/security"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage clockd's peer trust database",
}

var trustAddCmd = &cobra.Command{
	Use:   "add <db-path>",
	Short: "Add a peer's public key to the trust database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := args[0]
		pubHex, _ := cmd.Flags().GetString("pubkey")
		identity, _ := cmd.Flags().GetString("id")
		if pubHex == "" || identity == "" {
			return fmt.Errorf("--pubkey and --id are required")
		}

		pub, err := hex.DecodeString(pubHex)
		if err != nil {
			return fmt.Errorf("decoding --pubkey: %w", err)
		}
		db, err := security.LoadTrustDB(dbPath)
		if err != nil {
			return fmt.Errorf("loading trust db %s: %w", dbPath, err)
		}
		if err := db.Add(pub, identity); err != nil {
			return fmt.Errorf("adding %s to trust db: %w", identity, err)
		}

		color.New(color.FgGreen).Printf("trusted %s as %q (%s)\n", pubHex, identity, dbPath)
		return nil
	},
}

var trustListCmd = &cobra.Command{
	Use:   "list <db-path>",
	Short: "List every peer currently in the trust database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := args[0]
		db, err := security.LoadTrustDB(dbPath)
		if err != nil {
			return fmt.Errorf("loading trust db %s: %w", dbPath, err)
		}
		for pub, identity := range db.Entries() {
			fmt.Printf("%s  %s\n", pub, identity)
		}
		return nil
	},
}

var trustRemoveCmd = &cobra.Command{
	Use:   "remove <db-path>",
	Short: "Remove a peer's public key from the trust database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := args[0]
		pubHex, _ := cmd.Flags().GetString("pubkey")
		if pubHex == "" {
			return fmt.Errorf("--pubkey is required")
		}
		pub, err := hex.DecodeString(pubHex)
		if err != nil {
			return fmt.Errorf("decoding --pubkey: %w", err)
		}
		db, err := security.LoadTrustDB(dbPath)
		if err != nil {
			return fmt.Errorf("loading trust db %s: %w", dbPath, err)
		}
		if err := db.Remove(pub); err != nil {
			return fmt.Errorf("removing key from trust db: %w", err)
		}
		color.New(color.FgGreen).Printf("removed %s from %s\n", pubHex, dbPath)
		return nil
	},
}

func init() {
	trustCmd.AddCommand(trustAddCmd)
	trustCmd.AddCommand(trustListCmd)
	trustCmd.AddCommand(trustRemoveCmd)

	trustAddCmd.Flags().String("pubkey", "", "Hex-encoded public key to trust (required)")
	trustAddCmd.Flags().String("id", "", "Identity to record for this key (required)")
	trustRemoveCmd.Flags().String("pubkey", "", "Hex-encoded public key to remove (required)")
}
