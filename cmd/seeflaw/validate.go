package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <testfile> [key=value...]",
	Short: "Validate a test document and the configuration without running it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		runArgs, err := runArguments(cmd, args[1:])
		if err != nil {
			return err
		}
		if err := a.validate(cmd.Context(), args[0], runArgs); err != nil {
			return err
		}
		fmt.Printf("✓ %s is valid\n", args[0])
		return nil
	},
}

func init() {
	addArgumentFlag(validateCmd)
	rootCmd.AddCommand(validateCmd)
}
