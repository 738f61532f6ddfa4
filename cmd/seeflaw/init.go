package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seeflaw/seeflaw/internal/fixture/example"
)

const configTemplate = `# SeeFlaw configuration. Values may use ${ENV} variables.
arguments:
  user: World
# plugin_path: ./fixtures
# precase: pre.xml
# postcase: post.xml
# timeout: 30s
# fixtures:
#   shop:
#     path: ./bin/shop
#     sha256: false
report:
  xml_file: result.xml
# services:
#   team:
#     url: slack://${SLACK_TOKEN}@channel
# notify:
#   - team
# trigger:
#   watch: true
`

const exampleTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<seeflaw>
  <text>Example test using the built-in example fixture.</text>
  <param name="who" argument="user"/>
  <init fixture="%[1]s" id="ex"/>
  <call fixture="ex" method="SingleOutputExampleMethod">
    <input name="who"/>
    <output message="Hello World"/>
  </call>
  <call fixture="ex" method="MultiOutputExampleMethod">
    <input lines="2"/>
    <output message="line1"/>
    <output message="line2"/>
  </call>
</seeflaw>
`

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter seeflaw.yaml and example test document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}

		files := []struct {
			name, content string
		}{
			{"seeflaw.yaml", configTemplate},
			{"example.xml", fmt.Sprintf(exampleTemplate, example.TypeName)},
		}
		for _, f := range files {
			path := filepath.Join(dir, f.name)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("- %s exists, skipped\n", path)
				continue
			}
			if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Printf("✓ wrote %s\n", path)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
