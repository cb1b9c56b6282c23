// Package cmd is for command line interactions with the allin application
package cmd

import (
	"log"
	"os"

	"github.com/SakaMax/nodule-ngs2/config"
	"github.com/spf13/cobra"
)

// stderr is for logging to Stderr (without an annoying timestamp)
var stderr = log.New(os.Stderr, "", 0)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use: "allin",
	Short: `Identify the organism in every well of a multi-well plate run.
Trims, filters and demultiplexes paired-end reads, assembles per-well
contigs, and resolves blastn results into one consensus call per well`,
	Version: "2.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		stderr.Fatalf("%v", err)
	}
}

func init() {
	config.SetDefaults()
}
