package allin

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// Engine is the closed set of supported assembly engines.
type Engine int

const (
	Megahit Engine = iota
	Skesa
	Spades
)

// ParseEngine maps the CLI/config engine name onto its variant.
func ParseEngine(name string) (Engine, error) {
	switch name {
	case "megahit":
		return Megahit, nil
	case "skesa":
		return Skesa, nil
	case "spades":
		return Spades, nil
	}
	return 0, errors.Errorf("unknown assembler %q (want megahit, skesa or spades)", name)
}

// Assembler is the capability boundary to an external assembly
// engine: given one well's paired reads it returns the assembled
// contigs. Zero contigs is a valid result; a non-zero exit of the
// external binary is a (stage-level, retryable) error.
type Assembler interface {
	Name() string
	Assemble(ctx context.Context, r1Path, r2Path, outDir string) ([]Contig, error)
}

// NewAssembler builds the engine's Assembler with its extra
// parameters from config.
func NewAssembler(engine Engine, params []string, logger *log.Logger) Assembler {
	switch engine {
	case Skesa:
		return &skesaAssembler{params: params, logger: logger}
	case Spades:
		return &spadesAssembler{params: params, logger: logger}
	default:
		return &megahitAssembler{params: params, logger: logger}
	}
}

// runAssembly executes an assembler command and, on success, loads
// the contigs it wrote. A missing contig file means zero contigs.
func runAssembly(ctx context.Context, logger *log.Logger, contigsPath string, name string, args []string) ([]Contig, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Wrapf(err, "failed to execute %s: %s", name, string(output))
	}

	contigs, err := ReadFasta(contigsPath)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Printf("%s: %d contig(s) at %s", name, len(contigs), contigsPath)
	}

	return contigs, nil
}

type megahitAssembler struct {
	params []string
	logger *log.Logger
}

func (a *megahitAssembler) Name() string { return "megahit" }

func (a *megahitAssembler) Assemble(ctx context.Context, r1Path, r2Path, outDir string) ([]Contig, error) {
	// megahit refuses to run into an existing directory
	if err := os.RemoveAll(outDir); err != nil {
		return nil, errors.Wrapf(err, "failed to clear %s", outDir)
	}

	args := append([]string{
		"-1", r1Path,
		"-2", r2Path,
		"-o", outDir,
	}, a.params...)

	return runAssembly(ctx, a.logger, filepath.Join(outDir, "final.contigs.fa"), "megahit", args)
}

type skesaAssembler struct {
	params []string
	logger *log.Logger
}

func (a *skesaAssembler) Name() string { return "skesa" }

func (a *skesaAssembler) Assemble(ctx context.Context, r1Path, r2Path, outDir string) ([]Contig, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", outDir)
	}

	contigsPath := filepath.Join(outDir, "contigs.fa")
	args := append([]string{
		"--reads", r1Path + "," + r2Path,
		"--contigs_out", contigsPath,
	}, a.params...)

	return runAssembly(ctx, a.logger, contigsPath, "skesa", args)
}

type spadesAssembler struct {
	params []string
	logger *log.Logger
}

func (a *spadesAssembler) Name() string { return "spades" }

func (a *spadesAssembler) Assemble(ctx context.Context, r1Path, r2Path, outDir string) ([]Contig, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", outDir)
	}

	args := append([]string{
		"-1", r1Path,
		"-2", r2Path,
		"-o", outDir,
	}, a.params...)

	return runAssembly(ctx, a.logger, filepath.Join(outDir, "contigs.fasta"), "spades.py", args)
}

// MergeFastq concatenates the replicate FASTQ files of one well into
// a single pooled file ahead of pooled assembly.
func MergeFastq(dst string, srcs []string) error {
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	for _, src := range srcs {
		f, err := os.Open(src)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", src)
		}
		if _, err := io.Copy(w, f); err != nil {
			f.Close()
			return errors.Wrapf(err, "failed to append %s to %s", src, dst)
		}
		f.Close()
	}

	return errors.Wrapf(w.Flush(), "failed to flush %s", dst)
}
