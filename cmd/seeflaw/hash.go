package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seeflaw/seeflaw/internal/fixture"
)

var hashCmd = &cobra.Command{
	Use:   "hash <file>",
	Short: "Print the sha256 hash of a fixture executable, for pinning in the config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := fixture.HashFile(args[0])
		if err != nil {
			return fmt.Errorf("hashing %s: %w", args[0], err)
		}
		fmt.Println(sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
}
