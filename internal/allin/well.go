package allin

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Well addresses one position on a multi-well plate.
type Well struct {
	// 1-based plate number
	Plate int

	// row letter, 'A' through 'H'
	Row byte

	// 1-based column number, 1 through 12
	Column int
}

// ParseWell parses the canonical 4-character well code, eg "1A01".
func ParseWell(code string) (Well, error) {
	if len(code) != 4 {
		return Well{}, errors.Errorf("well code %q is not 4 characters", code)
	}

	plate := int(code[0] - '0')
	if plate < 1 || plate > 9 {
		return Well{}, errors.Errorf("well code %q has an invalid plate number", code)
	}

	row := code[1]
	if row < 'A' || row > 'H' {
		return Well{}, errors.Errorf("well code %q has an invalid row letter", code)
	}

	col := int(code[2]-'0')*10 + int(code[3]-'0')
	if code[2] < '0' || code[2] > '9' || code[3] < '0' || code[3] > '9' || col < 1 || col > 12 {
		return Well{}, errors.Errorf("well code %q has an invalid column number", code)
	}

	return Well{Plate: plate, Row: row, Column: col}, nil
}

// Code renders the canonical 4-character well code.
func (w Well) Code() string {
	return fmt.Sprintf("%d%c%02d", w.Plate, w.Row, w.Column)
}

// Less orders wells by (plate, row, column).
func (w Well) Less(o Well) bool {
	if w.Plate != o.Plate {
		return w.Plate < o.Plate
	}
	if w.Row != o.Row {
		return w.Row < o.Row
	}
	return w.Column < o.Column
}

// SortWells sorts wells in place by (plate, row, column).
func SortWells(wells []Well) {
	sort.Slice(wells, func(i, j int) bool { return wells[i].Less(wells[j]) })
}

// BarcodePair is one acceptable (forward suffix, reverse suffix)
// combination for a well.
type BarcodePair struct {
	Forward string
	Reverse string
}

// BarcodeTable maps each well to its accepted barcode pairs. The table
// keeps the file's key order: when two wells claim the same pair (a
// table defect), the first well in file order wins the assignment.
type BarcodeTable struct {
	// wells in table (file) order
	Wells []Well

	pairs map[Well][]BarcodePair

	// inverse index: (forward, reverse) -> owning well
	index map[BarcodePair]Well
}

// LoadBarcodeTable reads cells.json, a mapping from well code to a
// list of [forward, reverse] suffix pairs:
//
//	{"1A01": [["BC01_F", "BC01_R"]], "1A02": [["BC02_F", "BC02_R"]]}
//
// A missing or malformed file is fatal at startup. Duplicate well
// codes are rejected.
func LoadBarcodeTable(path string) (*BarcodeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open cell table %s", path)
	}
	defer f.Close()

	// decode through the token stream so the well order of the file
	// is preserved; map decoding would shuffle it
	dec := json.NewDecoder(f)

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse cell table %s", path)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.Errorf("cell table %s is not a JSON object", path)
	}

	t := &BarcodeTable{
		pairs: make(map[Well][]BarcodePair),
		index: make(map[BarcodePair]Well),
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse cell table %s", path)
		}
		code := keyTok.(string)

		well, err := ParseWell(code)
		if err != nil {
			return nil, errors.Wrapf(err, "bad well code in %s", path)
		}
		if _, seen := t.pairs[well]; seen {
			return nil, errors.Errorf("duplicate well %s in %s", code, path)
		}

		var rawPairs [][]string
		if err := dec.Decode(&rawPairs); err != nil {
			return nil, errors.Wrapf(err, "bad barcode pair list for well %s in %s", code, path)
		}

		pairs := make([]BarcodePair, 0, len(rawPairs))
		for _, rp := range rawPairs {
			if len(rp) != 2 {
				return nil, errors.Errorf("well %s in %s has a barcode pair with %d entries, want 2", code, path, len(rp))
			}

			pair := BarcodePair{Forward: rp[0], Reverse: rp[1]}
			pairs = append(pairs, pair)

			// first well in file order wins on overlap
			if _, taken := t.index[pair]; !taken {
				t.index[pair] = well
			}
		}

		t.Wells = append(t.Wells, well)
		t.pairs[well] = pairs
	}

	if len(t.Wells) == 0 {
		return nil, errors.Errorf("cell table %s defines no wells", path)
	}

	return t, nil
}

// Lookup returns the well owning the (forward, reverse) suffix pair,
// or false when no well accepts it.
func (t *BarcodeTable) Lookup(forward, reverse string) (Well, bool) {
	w, ok := t.index[BarcodePair{Forward: forward, Reverse: reverse}]
	return w, ok
}

// Pairs returns the accepted barcode pairs of a well.
func (t *BarcodeTable) Pairs(w Well) []BarcodePair {
	return t.pairs[w]
}

// Plates returns the sorted, distinct plate numbers referenced by
// the table.
func (t *BarcodeTable) Plates() []int {
	seen := make(map[int]bool)
	var plates []int
	for _, w := range t.Wells {
		if !seen[w.Plate] {
			seen[w.Plate] = true
			plates = append(plates, w.Plate)
		}
	}
	sort.Ints(plates)
	return plates
}
