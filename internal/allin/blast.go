package allin

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// HomologyHit is one row of blastn tabular output (-outfmt 10, the
// standard 12 columns), annotated with the provenance of the query
// that produced it.
type HomologyHit struct {
	// qaccver
	Query string

	// saccver, the subject accession
	Subject string

	// pident
	PctIdentity float64

	// alignment length
	Length int

	Mismatch int
	GapOpen  int

	QueryStart int
	QueryEnd   int

	SubjectStart int
	SubjectEnd   int

	EValue   float64
	BitScore float64

	// provenance
	QueryFile string
	QueryName string
	QuerySeq  string
}

// QueryHits groups the hits of one query (one contig) of a search.
type QueryHits struct {
	// the contig's FASTA header
	Name string

	// the contig's sequence
	Seq string

	Hits []HomologyHit
}

// ResultSet is every hit produced from one ContigSet's search,
// grouped per query in FASTA order.
type ResultSet struct {
	// the query FASTA file the set was searched from
	Source string

	Queries []QueryHits
}

// Searcher is the homology-search collaborator boundary: it takes a
// query FASTA path and returns one ResultSet. An empty result is
// valid (no hit).
type Searcher interface {
	Search(ctx context.Context, queryFasta string) (*ResultSet, error)
}

// BlastSearcher runs the external blastn binary, one invocation per
// contig, and parses its CSV output.
type BlastSearcher struct {
	// extra blastn parameters, at minimum ["-db", <path>]
	Params []string

	Logger *log.Logger
}

// Search reads the query FASTA and blasts each contig in it. Contigs
// with no alignment produce a QueryHits with an empty Hits slice.
func (b *BlastSearcher) Search(ctx context.Context, queryFasta string) (*ResultSet, error) {
	contigs, err := ReadFasta(queryFasta)
	if err != nil {
		return nil, err
	}

	set := &ResultSet{Source: queryFasta}
	for _, c := range contigs {
		hits, err := b.searchContig(ctx, queryFasta, c)
		if err != nil {
			return nil, err
		}
		set.Queries = append(set.Queries, QueryHits{Name: c.Name, Seq: c.Seq, Hits: hits})
	}

	return set, nil
}

// searchContig blasts a single contig through temporary in/out files.
func (b *BlastSearcher) searchContig(ctx context.Context, queryFasta string, c Contig) ([]HomologyHit, error) {
	in, err := os.CreateTemp("", "blastn.in-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blastn query file")
	}
	defer os.Remove(in.Name())

	out, err := os.CreateTemp("", "blastn.out-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blastn output file")
	}
	defer os.Remove(out.Name())
	out.Close()

	if _, err := in.WriteString(fmt.Sprintf(">%s\n%s\n", c.Name, c.Seq)); err != nil {
		return nil, errors.Wrapf(err, "failed to write query sequence to %s", in.Name())
	}
	in.Close()

	args := append([]string{
		"-query", in.Name(),
		"-out", out.Name(),
		"-outfmt", "10",
	}, b.Params...)

	blastCmd := exec.CommandContext(ctx, "blastn", args...)
	if output, err := blastCmd.CombinedOutput(); err != nil {
		return nil, errors.Wrapf(err, "failed to execute blastn on %s: %s", c.Name, string(output))
	}

	raw, err := os.ReadFile(out.Name())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read blastn output %s", out.Name())
	}

	hits, err := parseHits(string(raw), queryFasta, c.Name, c.Seq)
	if err != nil {
		return nil, err
	}

	if b.Logger != nil {
		b.Logger.Printf("blastn: %s: %d hit(s) for %s", queryFasta, len(hits), c.Name)
	}

	return hits, nil
}

// parseHits parses blastn -outfmt 10 CSV rows. Column order is the
// blastn default: qaccver, saccver, pident, length, mismatch, gapopen,
// qstart, qend, sstart, send, evalue, bitscore.
func parseHits(csv, queryFile, queryName, querySeq string) ([]HomologyHit, error) {
	var hits []HomologyHit

	for _, line := range strings.Split(csv, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Split(line, ",")
		if len(cols) < 12 {
			return nil, errors.Errorf("blastn row has %d columns, want 12: %q", len(cols), line)
		}

		h := HomologyHit{
			Query:     cols[0],
			Subject:   cols[1],
			QueryFile: queryFile,
			QueryName: queryName,
			QuerySeq:  querySeq,
		}

		var err error
		if h.PctIdentity, err = strconv.ParseFloat(cols[2], 64); err != nil {
			return nil, errors.Wrapf(err, "bad pident in %q", line)
		}
		if h.Length, err = strconv.Atoi(cols[3]); err != nil {
			return nil, errors.Wrapf(err, "bad length in %q", line)
		}
		if h.Mismatch, err = strconv.Atoi(cols[4]); err != nil {
			return nil, errors.Wrapf(err, "bad mismatch in %q", line)
		}
		if h.GapOpen, err = strconv.Atoi(cols[5]); err != nil {
			return nil, errors.Wrapf(err, "bad gapopen in %q", line)
		}
		if h.QueryStart, err = strconv.Atoi(cols[6]); err != nil {
			return nil, errors.Wrapf(err, "bad qstart in %q", line)
		}
		if h.QueryEnd, err = strconv.Atoi(cols[7]); err != nil {
			return nil, errors.Wrapf(err, "bad qend in %q", line)
		}
		if h.SubjectStart, err = strconv.Atoi(cols[8]); err != nil {
			return nil, errors.Wrapf(err, "bad sstart in %q", line)
		}
		if h.SubjectEnd, err = strconv.Atoi(cols[9]); err != nil {
			return nil, errors.Wrapf(err, "bad send in %q", line)
		}
		if h.EValue, err = strconv.ParseFloat(cols[10], 64); err != nil {
			return nil, errors.Wrapf(err, "bad evalue in %q", line)
		}
		if h.BitScore, err = strconv.ParseFloat(cols[11], 64); err != nil {
			return nil, errors.Wrapf(err, "bad bitscore in %q", line)
		}

		hits = append(hits, h)
	}

	return hits, nil
}
