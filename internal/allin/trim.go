package allin

import (
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// The trim and quality-filter steps are thin collaborators: they hand
// input files to external binaries and surface non-zero exits as
// stage-level errors. All real logic lives downstream.

func runTool(ctx context.Context, logger *log.Logger, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "failed to execute %s: %s", name, string(output))
	}

	if logger != nil && len(output) > 0 {
		logger.Printf("%s: %s", name, string(output))
	}

	return nil
}

// CutadaptTag runs the tag-recognition pass: trims well tags off both
// reads, drops untrimmed pairs, and stamps the matched tag name onto
// the header as a trailing token (`-y " {name}"`) for the
// demultiplexer to pick up later.
func CutadaptTag(ctx context.Context, logger *log.Logger, r1, r2, forwardTag, reverseTag, outR1, outR2 string, params []string) error {
	if err := os.MkdirAll(filepath.Dir(outR1), 0755); err != nil {
		return errors.Wrap(err, "failed to create tag_removed directory")
	}

	args := append([]string{
		"--no-indels",
		"--discard-untrimmed",
		"-g", "file:" + forwardTag,
		"-G", "file:" + reverseTag,
		"-y", " {name}",
		"-o", outR1,
		"-p", outR2,
	}, params...)
	args = append(args, r1, r2)

	return runTool(ctx, logger, "cutadapt", args)
}

// CutadaptPrimer runs the primer-removal pass on tag-removed reads.
func CutadaptPrimer(ctx context.Context, logger *log.Logger, r1, r2, forwardPrimer, reversePrimer, outR1, outR2 string, params []string) error {
	if err := os.MkdirAll(filepath.Dir(outR1), 0755); err != nil {
		return errors.Wrap(err, "failed to create primer_removed directory")
	}

	args := append([]string{
		"-g", "file:" + forwardPrimer,
		"-G", "file:" + reversePrimer,
		"-o", outR1,
		"-p", outR2,
	}, params...)
	args = append(args, r1, r2)

	return runTool(ctx, logger, "cutadapt", args)
}

// Fastp quality-filters a read pair and writes an HTML report, which
// is also copied to reportDest for serving.
func Fastp(ctx context.Context, logger *log.Logger, r1, r2, outR1, outR2, htmlReport, reportDest string, params []string) error {
	if err := os.MkdirAll(filepath.Dir(outR1), 0755); err != nil {
		return errors.Wrap(err, "failed to create fastp directory")
	}
	if err := os.MkdirAll(reportDest, 0755); err != nil {
		return errors.Wrap(err, "failed to create report directory")
	}

	args := append([]string{
		"-i", r1,
		"-I", r2,
		"-o", outR1,
		"-O", outR2,
		"-h", htmlReport,
	}, params...)

	if err := runTool(ctx, logger, "fastp", args); err != nil {
		return err
	}

	return copyFile(htmlReport, filepath.Join(reportDest, filepath.Base(htmlReport)))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return errors.Wrapf(err, "failed to copy %s to %s", src, dst)
}
