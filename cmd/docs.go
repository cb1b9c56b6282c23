package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// docsCmd writes Markdown documentation for every command to ./docs.
var docsCmd = &cobra.Command{
	Use:    "docs",
	Short:  "Generate Markdown documentation for the CLI",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := doc.GenMarkdownTree(RootCmd, "./docs"); err != nil {
			stderr.Fatalf("%v", err)
		}
	},
}

func init() {
	RootCmd.AddCommand(docsCmd)
}
