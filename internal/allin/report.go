package allin

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReportRow is one line of the final call report.
type ReportRow struct {
	Plate            int
	Cell             string
	Candidate        string
	PctIdentity      float64
	Length           int
	EValue           float64
	BitScore         float64
	QuerySeq         string
	QueryFile        string
	FromIntersection bool
	RawCount         int
	QueryCount       int
	Alternatives     []string
}

// BuildRows turns the per-well consensus calls into report rows,
// enriched with the well's raw read count and query count, sorted by
// (plate, well). Wells without a call carry no row.
func BuildRows(calls map[string]*Call, l Layout) ([]ReportRow, error) {
	var rows []ReportRow

	for code, call := range calls {
		well, err := ParseWell(code)
		if err != nil {
			return nil, err
		}

		tmp1, _ := l.PooledFastq(well)
		rawCount := 0
		if _, statErr := os.Stat(tmp1); statErr == nil {
			if rawCount, err = CountFastqRecords(tmp1); err != nil {
				return nil, err
			}
		}

		queryCount := 0
		for _, qf := range strings.Split(call.QueryFile, ":") {
			contigs, err := ReadFasta(qf)
			if err != nil {
				return nil, err
			}
			queryCount += len(contigs)
		}

		rows = append(rows, ReportRow{
			Plate:            well.Plate,
			Cell:             code[1:],
			Candidate:        call.Hit.Subject,
			PctIdentity:      call.Hit.PctIdentity,
			Length:           call.Hit.Length,
			EValue:           call.Hit.EValue,
			BitScore:         call.Hit.BitScore,
			QuerySeq:         call.QuerySeq,
			QueryFile:        call.QueryFile,
			FromIntersection: call.FromIntersection,
			RawCount:         rawCount,
			QueryCount:       queryCount,
			Alternatives:     call.Alternatives(),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Plate != rows[j].Plate {
			return rows[i].Plate < rows[j].Plate
		}
		return rows[i].Cell < rows[j].Cell
	})

	return rows, nil
}

// reportHeader is the fixed column order of the call report.
var reportHeader = []string{
	"plate", "cell", "candidate", "percent.ident.",
	"length", "evalue", "bitscore", "query_seq",
	"query_file", "from_intersection", "raw_count",
	"query_count", "other_candidates",
}

// WriteReport writes rows as CSV.
func WriteReport(w io.Writer, rows []ReportRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(reportHeader); err != nil {
		return errors.Wrap(err, "failed to write report header")
	}

	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.Plate),
			r.Cell,
			r.Candidate,
			formatFloat(r.PctIdentity),
			strconv.Itoa(r.Length),
			formatFloat(r.EValue),
			formatFloat(r.BitScore),
			r.QuerySeq,
			r.QueryFile,
			strconv.FormatBool(r.FromIntersection),
			strconv.Itoa(r.RawCount),
			strconv.Itoa(r.QueryCount),
			strings.Join(r.Alternatives, ";"),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "failed to write report row")
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush report")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseFilter compiles a row predicate from an expression of
// "and"-joined comparisons, eg:
//
//	pident >= 97 and plate == 1
//
// Columns: plate, cell, candidate, pident, length, evalue, bitscore,
// raw_count, query_count, from_intersection.
// Operators: == != >= <= > <.
func ParseFilter(expr string) (func(ReportRow) bool, error) {
	clauses := strings.Split(expr, " and ")

	type clause struct {
		field, op, value string
	}

	ops := []string{"==", "!=", ">=", "<=", ">", "<"}

	var parsed []clause
	for _, raw := range clauses {
		raw = strings.TrimSpace(raw)

		var cl clause
		for _, op := range ops {
			if i := strings.Index(raw, op); i >= 0 {
				cl = clause{
					field: strings.TrimSpace(raw[:i]),
					op:    op,
					value: strings.TrimSpace(raw[i+len(op):]),
				}
				break
			}
		}
		if cl.op == "" {
			return nil, errors.Errorf("filter clause %q has no comparison operator", raw)
		}
		if _, err := filterValue(ReportRow{}, cl.field); err != nil {
			return nil, err
		}

		parsed = append(parsed, cl)
	}

	return func(r ReportRow) bool {
		for _, cl := range parsed {
			v, _ := filterValue(r, cl.field)

			if num, ok := v.(float64); ok {
				want, err := strconv.ParseFloat(cl.value, 64)
				if err != nil || !compareFloat(num, cl.op, want) {
					return false
				}
				continue
			}

			if !compareString(fmt.Sprintf("%v", v), cl.op, strings.Trim(cl.value, `"'`)) {
				return false
			}
		}
		return true
	}, nil
}

func filterValue(r ReportRow, field string) (interface{}, error) {
	switch field {
	case "plate":
		return float64(r.Plate), nil
	case "cell":
		return r.Cell, nil
	case "candidate":
		return r.Candidate, nil
	case "pident":
		return r.PctIdentity, nil
	case "length":
		return float64(r.Length), nil
	case "evalue":
		return r.EValue, nil
	case "bitscore":
		return r.BitScore, nil
	case "raw_count":
		return float64(r.RawCount), nil
	case "query_count":
		return float64(r.QueryCount), nil
	case "from_intersection":
		return strconv.FormatBool(r.FromIntersection), nil
	}
	return nil, errors.Errorf("unknown filter column %q", field)
}

func compareFloat(a float64, op string, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case "<":
		return a < b
	}
	return false
}

func compareString(a, op, b string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}
