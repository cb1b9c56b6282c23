package cmd

import (
	"os"

	"github.com/SakaMax/nodule-ngs2/internal/allin"
	"github.com/spf13/cobra"
)

// occupancyCmd re-renders the plate occupancy report of a finished
// (or partially finished) run from its cells directory.
var occupancyCmd = &cobra.Command{
	Use:   "occupancy <cells-dir>",
	Short: "Print the plate occupancy grids of a demultiplexed run",
	Args:  cobra.ExactArgs(1),
	Run:   runOccupancy,
}

func init() {
	occupancyCmd.Flags().StringP("cells-json", "c", "cells.json", "path to the well barcode table")

	RootCmd.AddCommand(occupancyCmd)
}

func runOccupancy(cmd *cobra.Command, args []string) {
	cellsJSON, _ := cmd.Flags().GetString("cells-json")

	table, err := allin.LoadBarcodeTable(cellsJSON)
	if err != nil {
		stderr.Fatalf("%v", err)
	}

	occ, err := allin.CountWellReads(args[0], table)
	if err != nil {
		stderr.Fatalf("%v", err)
	}

	occ.Write(os.Stdout)
}
