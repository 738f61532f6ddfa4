package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/seeflaw/seeflaw/internal/fixture"
)

var fixturesCmd = &cobra.Command{
	Use:   "fixtures [type]",
	Short: "List the built-in fixtures, or the methods of one fixture type",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			for _, name := range a.registry.Names() {
				fmt.Println(name)
			}
			return nil
		}

		d := a.details("", nil)
		b, err := d.Fixture(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		table := b.Methods()
		names := table.Names()
		sort.Strings(names)
		for _, name := range names {
			m := table[name]
			fmt.Printf("%-50s %-5s %s\n", name, m.Shape(), inputLabel(m))
		}
		return nil
	},
}

func inputLabel(m fixture.Method) string {
	if m.Input() == fixture.InputNone {
		return ""
	}
	return "input:" + m.Input().String()
}

func init() {
	rootCmd.AddCommand(fixturesCmd)
}
