package allin

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func Test_ReadFastq(t *testing.T) {
	reads, err := ReadFastq(filepath.Join("..", "..", "test", "R1.fastq"))
	if err != nil {
		t.Fatalf("failed to read fastq: %v", err)
	}

	if len(reads) != 3 {
		t.Fatalf("read %d records, want 3", len(reads))
	}

	want := Read{
		Header: "@M01234:55:A1 1:N:0:1 BC01_F",
		Seq:    "ACGTACGTACGT",
		Qual:   "IIIIIIIIIIII",
	}
	if reads[0] != want {
		t.Errorf("first record = %+v, want %+v", reads[0], want)
	}
}

func Test_ReadFastq_gzip(t *testing.T) {
	plain, err := ReadFastq(filepath.Join("..", "..", "test", "R1.fastq"))
	if err != nil {
		t.Fatalf("failed to read fastq: %v", err)
	}

	gz, err := ReadFastq(filepath.Join("..", "..", "test", "R1.fastq.gz"))
	if err != nil {
		t.Fatalf("failed to read gzipped fastq: %v", err)
	}

	if !reflect.DeepEqual(plain, gz) {
		t.Error("gzipped fastq decoded differently than the plain file")
	}
}

func Test_Read_Suffix(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"@M01234:55:A1 1:N:0:1 BC01_F", "BC01_F"},
		{"@read1 BC02_F", "BC02_F"},
		{"@bare-header", "@bare-header"},
	}

	for _, tt := range tests {
		r := Read{Header: tt.header}
		if got := r.Suffix(); got != tt.want {
			t.Errorf("Suffix(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func Test_ReadPairs(t *testing.T) {
	pairs, err := ReadPairs(
		filepath.Join("..", "..", "test", "R1.fastq"),
		filepath.Join("..", "..", "test", "R2.fastq"),
	)
	if err != nil {
		t.Fatalf("failed to read pairs: %v", err)
	}

	if len(pairs) != 3 {
		t.Fatalf("read %d pairs, want 3", len(pairs))
	}

	if pairs[0].R1.Suffix() != "BC01_F" || pairs[0].R2.Suffix() != "BC01_R" {
		t.Errorf("first pair suffixes = %q/%q, want BC01_F/BC01_R",
			pairs[0].R1.Suffix(), pairs[0].R2.Suffix())
	}
}

func Test_ReadPairs_countMismatch(t *testing.T) {
	dir := t.TempDir()

	r1 := filepath.Join(dir, "R1.fastq")
	r2 := filepath.Join(dir, "R2.fastq")
	os.WriteFile(r1, []byte("@a x\nACGT\n+\nIIII\n@b y\nACGT\n+\nIIII\n"), 0644)
	os.WriteFile(r2, []byte("@a x\nACGT\n+\nIIII\n"), 0644)

	_, err := ReadPairs(r1, r2)
	if !errors.Is(err, ErrPairCountMismatch) {
		t.Errorf("error = %v, want ErrPairCountMismatch", err)
	}
}

func Test_WriteFastq_roundtrip(t *testing.T) {
	reads := []Read{
		{Header: "@a BC1", Seq: "ACGT", Qual: "IIII"},
		{Header: "@b BC2", Seq: "TTTT", Qual: "JJJJ"},
	}

	path := filepath.Join(t.TempDir(), "nested", "out.fastq")
	if err := WriteFastq(path, reads); err != nil {
		t.Fatalf("failed to write fastq: %v", err)
	}

	got, err := ReadFastq(path)
	if err != nil {
		t.Fatalf("failed to read written fastq: %v", err)
	}

	if !reflect.DeepEqual(got, reads) {
		t.Errorf("roundtrip = %+v, want %+v", got, reads)
	}
}

func Test_CountFastqRecords(t *testing.T) {
	n, err := CountFastqRecords(filepath.Join("..", "..", "test", "R1.fastq"))
	if err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	if n != 3 {
		t.Errorf("counted %d records, want 3", n)
	}
}

func Test_ReadFastq_truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fastq")
	os.WriteFile(path, []byte("@a x\nACGT\n+\n"), 0644)

	if _, err := ReadFastq(path); err == nil {
		t.Error("expected an error for a truncated fastq file")
	}
}
