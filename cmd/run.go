package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SakaMax/nodule-ngs2/config"
	"github.com/SakaMax/nodule-ngs2/internal/allin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runCmd starts a cold run over raw paired-end inputs.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline over raw paired-end fastq inputs",
	Long: `Run the full pipeline over raw paired-end fastq inputs.

Each -1/-2 flag pair names one replicate's forward and reverse reads.
A checkpoint is written before every stage; "allin resume" continues a
run from any of them.

Example, two replicates assembled with megahit:

	allin run -1 repA.R1.fastq -2 repA.R2.fastq -1 repB.R1.fastq -2 repB.R2.fastq -a megahit`,
	Run: runRun,
}

func init() {
	runCmd.Flags().StringSliceP("1st-read", "1", nil, "forward read fastq of a replicate (repeatable)")
	runCmd.Flags().StringSliceP("2nd-read", "2", nil, "reverse read fastq of a replicate (repeatable)")
	runCmd.Flags().StringP("assembler", "a", "megahit", "assembly engine: megahit, skesa or spades")
	runCmd.Flags().StringP("settings", "s", "", "path to a settings.yaml overriding the defaults")
	runCmd.Flags().IntP("workers", "w", 4, "number of wells processed concurrently")
	runCmd.Flags().String("on-error", "continue", "stage failure policy: continue or halt")
	runCmd.Flags().StringP("filter", "f", "", "row filter for the final report, eg \"pident >= 97\"")

	runCmd.MarkFlagRequired("1st-read")
	runCmd.MarkFlagRequired("2nd-read")

	viper.BindPFlag("assembler", runCmd.Flags().Lookup("assembler"))
	viper.BindPFlag("pipeline.workers", runCmd.Flags().Lookup("workers"))
	viper.BindPFlag("pipeline.on-error", runCmd.Flags().Lookup("on-error"))
	viper.BindPFlag("filter", runCmd.Flags().Lookup("filter"))

	RootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	settings, _ := cmd.Flags().GetString("settings")
	if err := config.Load(settings); err != nil {
		stderr.Fatalf("%v", err)
	}

	c, err := config.New()
	if err != nil {
		stderr.Fatalf("%v", err)
	}

	r1, _ := cmd.Flags().GetStringSlice("1st-read")
	r2, _ := cmd.Flags().GetStringSlice("2nd-read")
	if len(r1) == 0 || len(r1) != len(r2) {
		stderr.Fatalf("need the same number of -1 and -2 inputs, got %d and %d", len(r1), len(r2))
	}

	layout := allin.NewLayout(c, r1, r2, time.Now())
	state := allin.NewState(c, layout)

	runPipeline(state)
}

// runPipeline reconstructs the live collaborators around a state
// (cold or restored) and drives the stage engine.
func runPipeline(state *allin.PipelineState) {
	c := state.Config

	logger := log.New(os.Stderr, "allin ", log.LstdFlags)

	engine, err := allin.ParseEngine(c.Assembler)
	if err != nil {
		stderr.Fatalf("%v", err)
	}

	asm := allin.NewAssembler(engine, c.EngineParams(c.Assembler), logger)
	searcher := &allin.BlastSearcher{Params: c.Tools.Blastn, Logger: logger}

	p := allin.NewPipeline(state, logger, os.Stdout, asm, searcher)

	// an interrupt stops dispatching new per-well work and kills
	// in-flight externals through their command contexts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		stderr.Fatalf("run %s failed: %v", state.RunID, err)
	}

	if len(state.StageErrors) > 0 {
		for stage, msg := range state.StageErrors {
			logger.Printf("stage %s failed: %s", stage, msg)
		}
		logger.Printf("run %s completed with %d failed stage(s)", state.RunID, len(state.StageErrors))
	} else {
		logger.Printf("run %s completed", state.RunID)
	}
}
