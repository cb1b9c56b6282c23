package allin

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/exascience/pargo/parallel"
)

// Occupancy reports how demultiplexing distributed read pairs over
// the plates.
type Occupancy struct {
	// read pair count per well; every table well has an entry,
	// including empty ones
	Counts map[Well]int

	// wells that matched nothing, sorted
	Empty []Well

	// read pairs that matched no well
	Discarded int

	// sorted plate numbers covered by the table
	Plates []int
}

// demuxShard is the partial grouping built over one slice of the
// input by one worker.
type demuxShard struct {
	buckets   map[Well][]ReadPair
	discarded int
}

// Demultiplex partitions read pairs into per-well buckets using the
// inverse barcode index: each pair lands in exactly one well's bucket
// or the discard count, never both, never neither. Pairs keep their
// input order inside each bucket.
func Demultiplex(pairs []ReadPair, table *BarcodeTable) (map[Well][]ReadPair, *Occupancy) {
	result := parallel.RangeReduce(0, len(pairs), 0,
		func(low, high int) interface{} {
			shard := demuxShard{buckets: make(map[Well][]ReadPair)}
			for _, p := range pairs[low:high] {
				well, ok := table.Lookup(p.R1.Suffix(), p.R2.Suffix())
				if !ok {
					shard.discarded++
					continue
				}
				shard.buckets[well] = append(shard.buckets[well], p)
			}
			return shard
		},
		func(x, y interface{}) interface{} {
			// ranges are contiguous, so appending y after x
			// keeps input order
			left, right := x.(demuxShard), y.(demuxShard)
			for well, ps := range right.buckets {
				left.buckets[well] = append(left.buckets[well], ps...)
			}
			left.discarded += right.discarded
			return left
		},
	).(demuxShard)

	occ := &Occupancy{
		Counts:    make(map[Well]int, len(table.Wells)),
		Discarded: result.discarded,
		Plates:    table.Plates(),
	}
	for _, well := range table.Wells {
		n := len(result.buckets[well])
		occ.Counts[well] = n
		if n == 0 {
			occ.Empty = append(occ.Empty, well)
		}
	}
	SortWells(occ.Empty)

	return result.buckets, occ
}

// WriteWellFastq persists one replicate's bucketed read pairs under
// cellsDir, one directory per well:
//
//	cells/1A01/<r1Name>
//	cells/1A01/<r2Name>
//
// Every well of the table gets a directory (and files), so that empty
// wells are visible downstream.
func WriteWellFastq(cellsDir, r1Name, r2Name string, table *BarcodeTable, buckets map[Well][]ReadPair) error {
	for _, well := range table.Wells {
		dir := filepath.Join(cellsDir, well.Code())

		ps := buckets[well]
		r1 := make([]Read, len(ps))
		r2 := make([]Read, len(ps))
		for i, p := range ps {
			r1[i] = p.R1
			r2[i] = p.R2
		}

		if err := WriteFastq(filepath.Join(dir, r1Name), r1); err != nil {
			return err
		}
		if err := WriteFastq(filepath.Join(dir, r2Name), r2); err != nil {
			return err
		}
	}

	return nil
}

// Write renders the occupancy report: one 8x12 grid per plate plus
// the empty well list and the discarded count.
func (o *Occupancy) Write(w io.Writer) {
	for _, plate := range o.Plates {
		fmt.Fprintf(w, "==== Reads in plate No. %d ====\n", plate)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprint(tw, "\t")
		for col := 1; col <= 12; col++ {
			fmt.Fprintf(tw, "%02d\t", col)
		}
		fmt.Fprintln(tw)

		for row := byte('A'); row <= 'H'; row++ {
			fmt.Fprintf(tw, "%c\t", row)
			for col := 1; col <= 12; col++ {
				fmt.Fprintf(tw, "%d\t", o.Counts[Well{Plate: plate, Row: row, Column: col}])
			}
			fmt.Fprintln(tw)
		}
		tw.Flush()
	}

	codes := make([]string, len(o.Empty))
	for i, w := range o.Empty {
		codes[i] = w.Code()
	}
	fmt.Fprintf(w, "Empty cells: %v\n", codes)
	fmt.Fprintf(w, "Discarded read pairs: %d\n", o.Discarded)
}

// CountWellReads rebuilds an occupancy report from a cells directory
// written by a previous run, counting the records of each well's
// pooled tmp_R1.fastq if present, else the first R1 file found.
func CountWellReads(cellsDir string, table *BarcodeTable) (*Occupancy, error) {
	occ := &Occupancy{
		Counts: make(map[Well]int, len(table.Wells)),
		Plates: table.Plates(),
	}

	for _, well := range table.Wells {
		dir := filepath.Join(cellsDir, well.Code())

		n := 0
		if _, err := os.Stat(filepath.Join(dir, "tmp_R1.fastq")); err == nil {
			if n, err = CountFastqRecords(filepath.Join(dir, "tmp_R1.fastq")); err != nil {
				return nil, err
			}
		} else {
			matches, _ := filepath.Glob(filepath.Join(dir, "*R1*.fastq"))
			for _, m := range matches {
				c, err := CountFastqRecords(m)
				if err != nil {
					return nil, err
				}
				n += c
			}
		}

		occ.Counts[well] = n
		if n == 0 {
			occ.Empty = append(occ.Empty, well)
		}
	}
	SortWells(occ.Empty)

	return occ, nil
}
