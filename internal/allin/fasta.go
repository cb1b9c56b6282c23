package allin

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Contig is one named sequence of an assembly output.
type Contig struct {
	// the header line without the leading ">"
	Name string

	Seq string
}

// ContigSet is the assembly output for one well in one mode: "pooled"
// or the replicate name it was assembled from.
type ContigSet struct {
	Well Well
	Mode string

	// the FASTA file the contigs live in
	Path string

	Contigs []Contig
}

// ReadFasta reads a (possibly multi-line) FASTA file. A missing file
// or an empty file yields an empty slice: zero contigs is a valid
// assembly result, not an error.
func ReadFasta(path string) ([]Contig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open fasta %s", path)
	}
	defer f.Close()

	var contigs []Contig
	var seq strings.Builder

	flush := func() {
		if len(contigs) > 0 {
			contigs[len(contigs)-1].Seq = seq.String()
		}
		seq.Reset()
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			contigs = append(contigs, Contig{Name: line[1:]})
			continue
		}
		seq.WriteString(line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", path)
	}

	return contigs, nil
}

// WriteFasta writes contigs to path, one header and one sequence line
// per contig, creating parent directories as needed.
func WriteFasta(path string, contigs []Contig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, c := range contigs {
		if _, err := w.WriteString(">" + c.Name + "\n" + c.Seq + "\n"); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
	}

	return errors.Wrapf(w.Flush(), "failed to flush %s", path)
}
