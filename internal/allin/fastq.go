// Package allin implements the core of the nodule NGS identification
// pipeline: demultiplexing paired reads into wells, assembling per-well
// contigs through external engines, resolving blastn results into a
// single consensus call per well, and sequencing all of it through a
// resumable, checkpointing stage engine.
package allin

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// ErrPairCountMismatch marks corrupt paired input: the forward and
// reverse FASTQ files hold a different number of records. The run
// cannot proceed past this.
var ErrPairCountMismatch = errors.New("forward and reverse reads have different record counts")

// Read is a single FASTQ record.
type Read struct {
	// the full header line, including the leading "@"
	Header string

	// the base sequence
	Seq string

	// the per-base quality string
	Qual string
}

// Suffix returns the trailing token of the header line: the portion
// after the last whitespace. Upstream tag trimming writes the matched
// barcode name there (cutadapt's `-y " {name}"`), so this is what
// assigns a read to a well.
func (r Read) Suffix() string {
	if i := strings.LastIndexAny(r.Header, " \t"); i >= 0 {
		return r.Header[i+1:]
	}
	return r.Header
}

// ReadPair couples the forward and reverse records of one fragment.
// Immutable once read.
type ReadPair struct {
	R1 Read
	R2 Read
}

// openFastq opens path for reading, transparently decompressing
// .gz inputs.
func openFastq(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open fastq %s", path)
	}

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to read gzip header of %s", path)
		}
		return &gzReadCloser{gz: gz, f: f}, nil
	}

	return f, nil
}

type gzReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzReadCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}

// ReadFastq reads every record of a FASTQ file into memory.
// Trailing blank lines (fastp leaves one) are ignored.
func ReadFastq(path string) ([]Read, error) {
	r, err := openFastq(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", path)
	}

	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	if len(lines)%4 != 0 {
		return nil, errors.Errorf("%s is not a valid fastq file: %d lines", path, len(lines))
	}

	reads := make([]Read, 0, len(lines)/4)
	for i := 0; i < len(lines); i += 4 {
		reads = append(reads, Read{
			Header: lines[i],
			Seq:    lines[i+1],
			Qual:   lines[i+3],
		})
	}

	return reads, nil
}

// ReadPairs reads a forward and a reverse FASTQ file and zips them
// into pairs. A record count mismatch wraps ErrPairCountMismatch and
// is fatal to the whole run.
func ReadPairs(r1Path, r2Path string) ([]ReadPair, error) {
	r1, err := ReadFastq(r1Path)
	if err != nil {
		return nil, err
	}

	r2, err := ReadFastq(r2Path)
	if err != nil {
		return nil, err
	}

	if len(r1) != len(r2) {
		return nil, errors.Wrapf(ErrPairCountMismatch, "%s has %d records, %s has %d", r1Path, len(r1), r2Path, len(r2))
	}

	pairs := make([]ReadPair, len(r1))
	for i := range r1 {
		pairs[i] = ReadPair{R1: r1[i], R2: r2[i]}
	}

	return pairs, nil
}

// WriteFastq writes reads to path as 4-line FASTQ records, creating
// parent directories as needed.
func WriteFastq(path string, reads []Read) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, r := range reads {
		if _, err := w.WriteString(r.Header + "\n" + r.Seq + "\n+\n" + r.Qual + "\n"); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to flush %s", path)
	}

	return nil
}

// CountFastqRecords returns the number of records in a FASTQ file
// without keeping it in memory. Used for the raw-read column of the
// final report.
func CountFastqRecords(path string) (int, error) {
	r, err := openFastq(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	lines := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			lines++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrapf(err, "failed to scan %s", path)
	}

	return lines / 4, nil
}
