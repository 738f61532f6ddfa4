package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/seeflaw/seeflaw/internal/trigger"
)

var watchCmd = &cobra.Command{
	Use:   "watch <testfile> [key=value...]",
	Short: "Run a test document repeatedly",
	Long: "Runs a test document, then again on every trigger until interrupted. The trigger is " +
		"read from the config or given with --interval, --cron or --on-change.",
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

		tcfg := a.cfg.Trigger
		if v, _ := cmd.Flags().GetString("interval"); v != "" {
			tcfg.Interval, tcfg.Cron, tcfg.Watch = v, "", false
		}
		if v, _ := cmd.Flags().GetString("cron"); v != "" {
			tcfg.Interval, tcfg.Cron, tcfg.Watch = "", v, false
		}
		if v, _ := cmd.Flags().GetBool("on-change"); v {
			tcfg.Interval, tcfg.Cron, tcfg.Watch = "", "", true
		}

		testFile := args[0]
		t, err := trigger.New(tcfg, documentFiles(testFile), a.logger)
		if err != nil {
			return err
		}
		defer t.Close()

		opts := runOptions{}
		opts.noTime, _ = cmd.Flags().GetBool("no-time")
		opts.outFile, _ = cmd.Flags().GetString("out-xml-file")
		opts.dryRun, _ = cmd.Flags().GetBool("dry-run")

		// an interrupt cancels the current run and ends the loop
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		return trigger.Loop(ctx, t, func(ctx context.Context) {
			if _, err := a.run(ctx, testFile, runArgs, opts); err != nil {
				a.logger.Error("run failed", "test", testFile, "error", err)
			}
			if w, ok := t.(*trigger.Watch); ok {
				if err := w.SetFiles(documentFiles(testFile)); err != nil {
					a.logger.Warn("updating watched files", "error", err)
				}
			}
		})
	},
}

func init() {
	addArgumentFlag(watchCmd)
	watchCmd.Flags().String("interval", "", "run every duration, e.g. 5m")
	watchCmd.Flags().String("cron", "", "run on a cron schedule, e.g. \"0 * * * *\"")
	watchCmd.Flags().Bool("on-change", false, "run when the test document or its load files change")
	watchCmd.Flags().String("out-xml-file", "", "write the result tree of each run to this file")
	watchCmd.Flags().Bool("no-time", false, "leave timings and run ids out of the result tree")
	watchCmd.Flags().Bool("dry-run", false, "check notification targets without sending")
	rootCmd.AddCommand(watchCmd)
}
