package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/seeflaw/seeflaw/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <testfile> [key=value...]",
	Short: "Run a test document once",
	Long: "Runs a test document and prints a summary. Arguments are available to param nodes. " +
		"Exits 2 when a row failed and 1 when the document could not be run. " +
		"Use --dry-run to skip sending notifications.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		runArgs, err := runArguments(cmd, args[1:])
		if err != nil {
			return err
		}

		opts := runOptions{}
		opts.noTime, _ = cmd.Flags().GetBool("no-time")
		opts.outFile, _ = cmd.Flags().GetString("out-xml-file")
		opts.dryRun, _ = cmd.Flags().GetBool("dry-run")
		if want, _ := cmd.Flags().GetBool("tui"); want {
			opts.interactive = tui.Interactive(os.Stderr)
			if !opts.interactive {
				a.logger.Warn("not a terminal, running without interactive view")
			}
		}

		out, err := a.run(cmd.Context(), args[0], runArgs, opts)
		if err != nil {
			return err
		}
		if code := out.ExitCode(); code != 0 {
			return exitCode(code)
		}
		return nil
	},
}

func init() {
	addArgumentFlag(runCmd)
	runCmd.Flags().String("out-xml-file", "", "write the result tree to this file")
	runCmd.Flags().Bool("no-time", false, "leave timings and run ids out of the result tree")
	runCmd.Flags().Bool("dry-run", false, "check notification targets without sending")
	runCmd.Flags().Bool("tui", false, "show the interactive run view (s stop, k kill)")
	rootCmd.AddCommand(runCmd)
}

func addArgumentFlag(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("arg", "a", nil, "run argument key=value (repeatable)")
}

// runArguments merges --arg flags with trailing key=value arguments.
func runArguments(cmd *cobra.Command, positional []string) (map[string]string, error) {
	flagged, _ := cmd.Flags().GetStringArray("arg")
	return parseArguments(append(flagged, positional...))
}
