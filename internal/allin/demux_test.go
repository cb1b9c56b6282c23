package allin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func pairWith(id, fwd, rev string) ReadPair {
	return ReadPair{
		R1: Read{Header: "@" + id + " 1:N:0:1 " + fwd, Seq: "ACGT", Qual: "IIII"},
		R2: Read{Header: "@" + id + " 2:N:0:1 " + rev, Seq: "TGCA", Qual: "IIII"},
	}
}

func Test_Demultiplex(t *testing.T) {
	table, err := LoadBarcodeTable(writeTable(t, `{"1A01": [["BC1","BC2"]]}`))
	if err != nil {
		t.Fatalf("failed to load table: %v", err)
	}

	pairs := []ReadPair{
		pairWith("a", "BC1", "BC2"),
		pairWith("b", "BC9", "BC9"),
	}

	buckets, occ := Demultiplex(pairs, table)

	well := Well{Plate: 1, Row: 'A', Column: 1}
	if occ.Counts[well] != 1 {
		t.Errorf("1A01 count = %d, want 1", occ.Counts[well])
	}
	if occ.Discarded != 1 {
		t.Errorf("discarded = %d, want 1", occ.Discarded)
	}
	if len(buckets[well]) != 1 || buckets[well][0].R1.Suffix() != "BC1" {
		t.Errorf("1A01 bucket = %v", buckets[well])
	}
}

// every input pair ends in exactly one bucket or the discard count,
// never both, never neither
func Test_Demultiplex_partitionOrDrop(t *testing.T) {
	table, err := LoadBarcodeTable(writeTable(t,
		`{"1A01": [["F1","R1"]], "1A02": [["F2","R2"]], "1B01": [["F3","R3"]]}`))
	if err != nil {
		t.Fatalf("failed to load table: %v", err)
	}

	var pairs []ReadPair
	for i := 0; i < 100; i++ {
		switch i % 4 {
		case 0:
			pairs = append(pairs, pairWith("r", "F1", "R1"))
		case 1:
			pairs = append(pairs, pairWith("r", "F2", "R2"))
		case 2:
			pairs = append(pairs, pairWith("r", "F3", "R3"))
		default:
			pairs = append(pairs, pairWith("r", "FX", "RX"))
		}
	}

	buckets, occ := Demultiplex(pairs, table)

	bucketed := 0
	for _, ps := range buckets {
		bucketed += len(ps)
	}
	if bucketed+occ.Discarded != len(pairs) {
		t.Errorf("bucketed %d + discarded %d != %d inputs", bucketed, occ.Discarded, len(pairs))
	}
	if occ.Discarded != 25 {
		t.Errorf("discarded = %d, want 25", occ.Discarded)
	}

	for w, n := range occ.Counts {
		if n != len(buckets[w]) {
			t.Errorf("well %s: count %d != bucket size %d", w.Code(), n, len(buckets[w]))
		}
	}
}

// pairs keep their input order inside a bucket, so demultiplexed
// output files are byte deterministic
func Test_Demultiplex_stableOrder(t *testing.T) {
	table, err := LoadBarcodeTable(writeTable(t, `{"1A01": [["F","R"]]}`))
	if err != nil {
		t.Fatalf("failed to load table: %v", err)
	}

	var pairs []ReadPair
	for i := 0; i < 500; i++ {
		p := pairWith("r", "F", "R")
		p.R1.Seq = strings.Repeat("A", i%7+1)
		pairs = append(pairs, p)
	}

	buckets, _ := Demultiplex(pairs, table)

	got := buckets[Well{Plate: 1, Row: 'A', Column: 1}]
	if len(got) != len(pairs) {
		t.Fatalf("bucket has %d pairs, want %d", len(got), len(pairs))
	}
	for i := range got {
		if got[i].R1.Seq != pairs[i].R1.Seq {
			t.Fatalf("pair %d out of order", i)
		}
	}
}

func Test_Demultiplex_emptyWellReported(t *testing.T) {
	table, err := LoadBarcodeTable(writeTable(t, `{"1A01": [["F","R"]], "1H12": [["NOPE_F","NOPE_R"]]}`))
	if err != nil {
		t.Fatalf("failed to load table: %v", err)
	}

	_, occ := Demultiplex([]ReadPair{pairWith("a", "F", "R")}, table)

	empty := Well{Plate: 1, Row: 'H', Column: 12}
	if n, present := occ.Counts[empty]; !present || n != 0 {
		t.Errorf("empty well count = %d (present=%v), want 0 and reported", n, present)
	}
	if len(occ.Empty) != 1 || occ.Empty[0] != empty {
		t.Errorf("Empty = %v, want [1H12]", occ.Empty)
	}
}

func Test_Occupancy_Write(t *testing.T) {
	table, err := LoadBarcodeTable(writeTable(t, `{"1A01": [["F","R"]], "1B02": [["F2","R2"]]}`))
	if err != nil {
		t.Fatalf("failed to load table: %v", err)
	}

	_, occ := Demultiplex([]ReadPair{
		pairWith("a", "F", "R"),
		pairWith("b", "F", "R"),
	}, table)

	var sb strings.Builder
	occ.Write(&sb)
	out := sb.String()

	if !strings.Contains(out, "==== Reads in plate No. 1 ====") {
		t.Errorf("missing plate heading in:\n%s", out)
	}
	if !strings.Contains(out, "Empty cells: [1B02]") {
		t.Errorf("missing empty cell list in:\n%s", out)
	}
	if !strings.Contains(out, "Discarded read pairs: 0") {
		t.Errorf("missing discarded count in:\n%s", out)
	}
}

func Test_WriteWellFastq(t *testing.T) {
	table, err := LoadBarcodeTable(writeTable(t, `{"1A01": [["F","R"]], "1A02": [["F2","R2"]]}`))
	if err != nil {
		t.Fatalf("failed to load table: %v", err)
	}

	buckets, _ := Demultiplex([]ReadPair{pairWith("a", "F", "R")}, table)

	cells := filepath.Join(t.TempDir(), "cells")
	if err := WriteWellFastq(cells, "s1.R1.fastq", "s1.R2.fastq", table, buckets); err != nil {
		t.Fatalf("failed to write wells: %v", err)
	}

	reads, err := ReadFastq(filepath.Join(cells, "1A01", "s1.R1.fastq"))
	if err != nil {
		t.Fatalf("failed to read well fastq: %v", err)
	}
	if len(reads) != 1 {
		t.Errorf("1A01 has %d reads, want 1", len(reads))
	}

	// empty wells still get (empty) files so they stay visible
	if _, err := os.Stat(filepath.Join(cells, "1A02", "s1.R1.fastq")); err != nil {
		t.Errorf("empty well file missing: %v", err)
	}
}
