package cmd

import (
	"github.com/SakaMax/nodule-ngs2/config"
	"github.com/SakaMax/nodule-ngs2/internal/allin"
	"github.com/spf13/cobra"
)

// resumeCmd continues a run from a checkpoint file.
var resumeCmd = &cobra.Command{
	Use:   "resume <checkpoint>",
	Short: "Resume a run from a checkpoint, optionally with new settings",
	Long: `Resume a run from a checkpoint file.

The full pipeline state (configuration, path layout, stage cursor) is
restored from the checkpoint; stages before the cursor are never
re-run. Pass --settings to replace the restored configuration before
continuing.`,
	Args: cobra.ExactArgs(1),
	Run:  runResume,
}

func init() {
	resumeCmd.Flags().StringP("settings", "s", "", "settings.yaml replacing the checkpointed configuration")

	RootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) {
	cp, err := allin.LoadCheckpoint(args[0])
	if err != nil {
		stderr.Fatalf("%v", err)
	}

	state := &cp.State

	if settings, _ := cmd.Flags().GetString("settings"); settings != "" {
		if err := config.Load(settings); err != nil {
			stderr.Fatalf("%v", err)
		}
		override, err := config.New()
		if err != nil {
			stderr.Fatalf("%v", err)
		}
		state.Override(override)
	}

	stderr.Printf("resuming run %s at stage %d (checkpoint %s)", state.RunID, state.Cursor, cp.Tag)

	runPipeline(state)
}
