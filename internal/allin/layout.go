package allin

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/SakaMax/nodule-ngs2/config"
)

// Layout is the computed directory layout of one run. It is part of
// the checkpointed state, so it holds paths only, never open handles.
type Layout struct {
	// the run directory: <destination>/<timestamp>
	Dest string `json:"dest"`

	TagRemoved    string `json:"tagRemoved"`
	PrimerRemoved string `json:"primerRemoved"`
	Fastp         string `json:"fastp"`
	Cells         string `json:"cells"`

	// where fastp HTML reports are copied
	ReportDest string `json:"reportDest"`

	// the raw paired inputs, one entry per replicate
	R1 []string `json:"r1"`
	R2 []string `json:"r2"`
}

// NewLayout computes the directory layout for a cold start.
func NewLayout(c *config.Config, r1, r2 []string, now time.Time) Layout {
	prefix := now.Format(c.Data.TimeFormat)
	dest := filepath.Join(c.Data.Destination, prefix)

	return Layout{
		Dest:          dest,
		TagRemoved:    filepath.Join(dest, "tag_removed"),
		PrimerRemoved: filepath.Join(dest, "primer_removed"),
		Fastp:         filepath.Join(dest, "fastp"),
		Cells:         filepath.Join(dest, "cells"),
		ReportDest:    filepath.Join(c.Data.ReportDest, prefix),
		R1:            r1,
		R2:            r2,
	}
}

// Replicates returns the number of paired inputs.
func (l Layout) Replicates() int { return len(l.R1) }

// baseName strips the directory and any .fastq/.fq/.gz extensions
// from an input path: "runs/s1.R1.fastq.gz" -> "s1.R1".
func baseName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".fastq")
	name = strings.TrimSuffix(name, ".fq")
	return name
}

// stageFastq is the path of one input's intermediate file in a stage
// directory; stage outputs are always plain fastq.
func stageFastq(dir, raw string) string {
	return filepath.Join(dir, baseName(raw)+".fastq")
}

// TagRemovedFastq returns the tag_removed paths for replicate i.
func (l Layout) TagRemovedFastq(i int) (string, string) {
	return stageFastq(l.TagRemoved, l.R1[i]), stageFastq(l.TagRemoved, l.R2[i])
}

// PrimerRemovedFastq returns the primer_removed paths for replicate i.
func (l Layout) PrimerRemovedFastq(i int) (string, string) {
	return stageFastq(l.PrimerRemoved, l.R1[i]), stageFastq(l.PrimerRemoved, l.R2[i])
}

// FastpFastq returns the quality-filtered paths for replicate i.
func (l Layout) FastpFastq(i int) (string, string) {
	return stageFastq(l.Fastp, l.R1[i]), stageFastq(l.Fastp, l.R2[i])
}

// FastpReport returns the fastp HTML report path for replicate i,
// named by the common prefix of the pair.
func (l Layout) FastpReport(i int) string {
	common := commonPrefix(baseName(l.R1[i]), baseName(l.R2[i]))
	if common == "" {
		common = baseName(l.R1[i])
	}
	return filepath.Join(l.Fastp, common+".html")
}

// ReplicateName is the label of replicate i used for per-replicate
// contig files, derived from the forward input's base name.
func (l Layout) ReplicateName(i int) string {
	return baseName(l.R1[i])
}

// WellDir is the per-well output directory.
func (l Layout) WellDir(w Well) string {
	return filepath.Join(l.Cells, w.Code())
}

// WellFastq returns the demultiplexed paths of replicate i inside a
// well's directory.
func (l Layout) WellFastq(w Well, i int) (string, string) {
	dir := l.WellDir(w)
	return filepath.Join(dir, baseName(l.R1[i])+".fastq"), filepath.Join(dir, baseName(l.R2[i])+".fastq")
}

// PooledFastq returns the merged tmp_R1/tmp_R2 paths of a well.
func (l Layout) PooledFastq(w Well) (string, string) {
	dir := l.WellDir(w)
	return filepath.Join(dir, "tmp_R1.fastq"), filepath.Join(dir, "tmp_R2.fastq")
}

// PooledContigs is the pooled-assembly FASTA of a well.
func (l Layout) PooledContigs(w Well) string {
	return filepath.Join(l.WellDir(w), "contigs.fasta")
}

// ReplicateContigs is the per-replicate assembly FASTA of a well.
func (l Layout) ReplicateContigs(w Well, i int) string {
	return filepath.Join(l.WellDir(w), l.ReplicateName(i)+"_ind_contigs.fasta")
}

// AssemblyDir is the engine scratch directory of one well/mode pair,
// eg cells/1A01/pooled_megahit_out.
func (l Layout) AssemblyDir(w Well, mode, engine string) string {
	return filepath.Join(l.WellDir(w), mode+"_"+engine+"_out")
}

// CallsJSON holds the per-well consensus calls between the
// homology-search and report stages.
func (l Layout) CallsJSON() string {
	return filepath.Join(l.Dest, "calls.json")
}

// ResultCSV is the final call report path.
func (l Layout) ResultCSV() string {
	return filepath.Join(l.Dest, "result.csv")
}

// OccupancyReport is the textual occupancy report path.
func (l Layout) OccupancyReport() string {
	return filepath.Join(l.Dest, "occupancy.txt")
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return strings.TrimRight(a[:i], "._-")
}
