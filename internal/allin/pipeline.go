package allin

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// StageFunc is one unit of the pipeline. Stages communicate through
// the run directory, never through process memory, which is what
// makes resuming from any boundary possible.
type StageFunc func(ctx context.Context, p *Pipeline) error

// Stage is a named pipeline step.
type Stage struct {
	Name string
	Run  StageFunc
}

// DefaultStages is the fixed, ordered stage list of a full run.
func DefaultStages() []Stage {
	return []Stage{
		{Name: "trim-tag", Run: stageTrimTag},
		{Name: "trim-primer", Run: stageTrimPrimer},
		{Name: "quality-filter", Run: stageQualityFilter},
		{Name: "demultiplex", Run: stageDemultiplex},
		{Name: "assemble-pooled", Run: stageAssemblePooled},
		{Name: "assemble-individual", Run: stageAssembleIndividual},
		{Name: "homology-search", Run: stageHomologySearch},
		{Name: "report", Run: stageReport},
	}
}

// Pipeline executes the stage list over a PipelineState, persisting a
// checkpoint before every stage and a terminal one after the run.
type Pipeline struct {
	State *PipelineState

	// observability port; required
	Logger *log.Logger

	// where textual reports (occupancy grid) are printed
	Out io.Writer

	Assembler Assembler
	Searcher  Searcher

	Stages []Stage
}

// NewPipeline wires a pipeline with the default stage list.
func NewPipeline(state *PipelineState, logger *log.Logger, out io.Writer, asm Assembler, searcher Searcher) *Pipeline {
	return &Pipeline{
		State:     state,
		Logger:    logger,
		Out:       out,
		Assembler: asm,
		Searcher:  searcher,
		Stages:    DefaultStages(),
	}
}

// IsFatal reports whether an error must abort the whole run
// regardless of the on-error policy.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPairCountMismatch)
}

// Run executes stages from the state's cursor to the end of the list.
//
// Before stage i a checkpoint tagged "before_<name>" is persisted.
// On success the cursor advances. On failure the error is recorded
// (never retried); under the continue policy the cursor advances and
// the next stage runs anyway, since later stages can act on whichever
// wells succeeded; under the halt policy the cursor stays on the
// failed stage so its "before_" checkpoint remains the resume point.
// A terminal checkpoint tagged "after_all" is always persisted.
func (p *Pipeline) Run(ctx context.Context) error {
	cfg := p.State.Config
	halt := cfg.Pipeline.OnError == "halt"

	var halted error
	for p.State.Cursor < len(p.Stages) {
		if err := ctx.Err(); err != nil {
			return err
		}

		stage := p.Stages[p.State.Cursor]
		if _, err := SaveCheckpoint(p.State.Layout.Dest, cfg.Pipeline.CheckpointPrefix, "before_"+stage.Name, p.State); err != nil {
			return err
		}

		p.Logger.Printf("==== stage %d/%d: %s ====", p.State.Cursor+1, len(p.Stages), stage.Name)

		if err := stage.Run(ctx, p); err != nil {
			if IsFatal(err) || errors.Is(err, context.Canceled) {
				return err
			}

			p.State.StageErrors[stage.Name] = err.Error()
			p.Logger.Printf("stage %s failed: %v", stage.Name, err)

			if halt {
				halted = errors.Wrapf(err, "halted at stage %s", stage.Name)
				break
			}
		}

		p.State.Cursor++
	}

	if _, err := SaveCheckpoint(p.State.Layout.Dest, cfg.Pipeline.CheckpointPrefix, "after_all", p.State); err != nil {
		return err
	}

	return halted
}

// eachWell dispatches fn over the wells through a bounded worker
// pool. A cancelled context stops dispatching new wells but lets
// in-flight work finish. Individual well failures are collected, not
// propagated mid-stage, so the surviving wells still complete.
func (p *Pipeline) eachWell(ctx context.Context, wells []Well, fn func(ctx context.Context, w Well) error) error {
	// checkpointed state may carry an edited worker count
	workers := p.State.Config.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	var mu sync.Mutex
	var failures []string

	for _, w := range wells {
		if ctx.Err() != nil {
			break
		}

		w := w
		g.Go(func() error {
			if err := fn(ctx, w); err != nil {
				p.Logger.Printf("well %s: %v", w.Code(), err)
				mu.Lock()
				failures = append(failures, w.Code())
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failures) > 0 {
		return errors.Errorf("%d well(s) failed: %s", len(failures), strings.Join(failures, ", "))
	}
	return nil
}

func stageTrimTag(ctx context.Context, p *Pipeline) error {
	c, l := p.State.Config, p.State.Layout
	for i := 0; i < l.Replicates(); i++ {
		out1, out2 := l.TagRemovedFastq(i)
		if err := CutadaptTag(ctx, p.Logger, l.R1[i], l.R2[i], c.Data.ForwardTag, c.Data.ReverseTag, out1, out2, c.Tools.Cutadapt); err != nil {
			return err
		}
	}
	return nil
}

func stageTrimPrimer(ctx context.Context, p *Pipeline) error {
	c, l := p.State.Config, p.State.Layout
	for i := 0; i < l.Replicates(); i++ {
		in1, in2 := l.TagRemovedFastq(i)
		out1, out2 := l.PrimerRemovedFastq(i)
		if err := CutadaptPrimer(ctx, p.Logger, in1, in2, c.Data.ForwardPrimer, c.Data.ReversePrimer, out1, out2, c.Tools.Cutadapt); err != nil {
			return err
		}
	}
	return nil
}

func stageQualityFilter(ctx context.Context, p *Pipeline) error {
	c, l := p.State.Config, p.State.Layout
	for i := 0; i < l.Replicates(); i++ {
		in1, in2 := l.PrimerRemovedFastq(i)
		out1, out2 := l.FastpFastq(i)
		if err := Fastp(ctx, p.Logger, in1, in2, out1, out2, l.FastpReport(i), l.ReportDest, c.Tools.Fastp); err != nil {
			return err
		}
	}
	return nil
}

func stageDemultiplex(ctx context.Context, p *Pipeline) error {
	c, l := p.State.Config, p.State.Layout

	table, err := LoadBarcodeTable(c.Data.CellsJSON)
	if err != nil {
		return err
	}

	// one occupancy report over all replicates
	total := &Occupancy{
		Counts: make(map[Well]int, len(table.Wells)),
		Plates: table.Plates(),
	}

	for i := 0; i < l.Replicates(); i++ {
		in1, in2 := l.FastpFastq(i)

		pairs, err := ReadPairs(in1, in2)
		if err != nil {
			return err
		}

		buckets, occ := Demultiplex(pairs, table)

		if err := WriteWellFastq(l.Cells, baseName(l.R1[i])+".fastq", baseName(l.R2[i])+".fastq", table, buckets); err != nil {
			return err
		}

		for w, n := range occ.Counts {
			total.Counts[w] += n
		}
		total.Discarded += occ.Discarded
	}

	for _, w := range table.Wells {
		if total.Counts[w] == 0 {
			total.Empty = append(total.Empty, w)
		}
	}
	SortWells(total.Empty)

	total.Write(p.Out)
	p.Logger.Printf("empty cells: %d out of %d, discarded %d read pair(s)",
		len(total.Empty), len(table.Wells), total.Discarded)

	f, err := os.Create(l.OccupancyReport())
	if err != nil {
		return errors.Wrap(err, "failed to write occupancy report")
	}
	defer f.Close()
	total.Write(f)

	return nil
}

func stageAssemblePooled(ctx context.Context, p *Pipeline) error {
	c, l := p.State.Config, p.State.Layout

	table, err := LoadBarcodeTable(c.Data.CellsJSON)
	if err != nil {
		return err
	}

	return p.eachWell(ctx, table.Wells, func(ctx context.Context, w Well) error {
		tmp1, tmp2 := l.PooledFastq(w)

		var srcs1, srcs2 []string
		for i := 0; i < l.Replicates(); i++ {
			s1, s2 := l.WellFastq(w, i)
			srcs1 = append(srcs1, s1)
			srcs2 = append(srcs2, s2)
		}
		if err := MergeFastq(tmp1, srcs1); err != nil {
			return err
		}
		if err := MergeFastq(tmp2, srcs2); err != nil {
			return err
		}

		n, err := CountFastqRecords(tmp1)
		if err != nil {
			return err
		}
		if n == 0 {
			// empty well: zero contigs, not an error
			return WriteFasta(l.PooledContigs(w), nil)
		}

		contigs, err := p.Assembler.Assemble(ctx, tmp1, tmp2, l.AssemblyDir(w, "pooled", p.Assembler.Name()))
		if err != nil {
			return err
		}

		return WriteFasta(l.PooledContigs(w), contigs)
	})
}

func stageAssembleIndividual(ctx context.Context, p *Pipeline) error {
	c, l := p.State.Config, p.State.Layout

	table, err := LoadBarcodeTable(c.Data.CellsJSON)
	if err != nil {
		return err
	}

	return p.eachWell(ctx, table.Wells, func(ctx context.Context, w Well) error {
		for i := 0; i < l.Replicates(); i++ {
			r1, r2 := l.WellFastq(w, i)

			n, err := CountFastqRecords(r1)
			if err != nil {
				return err
			}
			if n == 0 {
				if err := WriteFasta(l.ReplicateContigs(w, i), nil); err != nil {
					return err
				}
				continue
			}

			contigs, err := p.Assembler.Assemble(ctx, r1, r2, l.AssemblyDir(w, l.ReplicateName(i), p.Assembler.Name()))
			if err != nil {
				return err
			}

			if err := WriteFasta(l.ReplicateContigs(w, i), contigs); err != nil {
				return err
			}
		}
		return nil
	})
}

func stageHomologySearch(ctx context.Context, p *Pipeline) error {
	c, l := p.State.Config, p.State.Layout

	table, err := LoadBarcodeTable(c.Data.CellsJSON)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	calls := make(map[string]*Call)

	err = p.eachWell(ctx, table.Wells, func(ctx context.Context, w Well) error {
		var indSets []*ResultSet
		for i := 0; i < l.Replicates(); i++ {
			set, err := p.Searcher.Search(ctx, l.ReplicateContigs(w, i))
			if err != nil {
				return err
			}
			if len(set.Queries) > 0 {
				indSets = append(indSets, set)
			}
		}

		var call *Call
		if len(indSets) >= 2 {
			// several replicates assembled independently:
			// require agreement across them
			call = ResolveMulti(indSets)
		} else {
			pooled, err := p.Searcher.Search(ctx, l.PooledContigs(w))
			if err != nil {
				return err
			}
			if len(pooled.Queries) > 0 {
				call = ResolveSingle(pooled)
			} else if len(indSets) == 1 {
				call = ResolveSingle(indSets[0])
			}
		}

		if call != nil {
			mu.Lock()
			calls[w.Code()] = call
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return err
	}

	return SaveCalls(l.CallsJSON(), calls)
}

func stageReport(ctx context.Context, p *Pipeline) error {
	c, l := p.State.Config, p.State.Layout

	calls, err := LoadCalls(l.CallsJSON())
	if err != nil {
		return err
	}

	rows, err := BuildRows(calls, l)
	if err != nil {
		return err
	}

	if c.Filter != "" {
		keep, err := ParseFilter(c.Filter)
		if err != nil {
			return err
		}
		var kept []ReportRow
		for _, r := range rows {
			if keep(r) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	f, err := os.Create(l.ResultCSV())
	if err != nil {
		return errors.Wrap(err, "failed to create result report")
	}
	defer f.Close()

	if err := WriteReport(f, rows); err != nil {
		return err
	}

	p.Logger.Printf("wrote %d call(s) to %s", len(rows), l.ResultCSV())
	return nil
}

// SaveCalls persists the per-well consensus calls between the search
// and report stages so a resume can re-enter at the report boundary.
func SaveCalls(path string, calls map[string]*Call) error {
	raw, err := json.MarshalIndent(calls, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to serialize calls")
	}
	return errors.Wrapf(os.WriteFile(path, raw, 0644), "failed to write %s", path)
}

// LoadCalls reads the calls written by the homology-search stage.
func LoadCalls(path string) (map[string]*Call, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read calls from %s", path)
	}

	calls := make(map[string]*Call)
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, errors.Wrapf(err, "calls file %s is corrupt", path)
	}
	return calls, nil
}
