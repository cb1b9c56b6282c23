package allin

import (
	"reflect"
	"testing"
)

func hit(subject string, evalue, bitscore float64) HomologyHit {
	return HomologyHit{
		Query:       "q",
		Subject:     subject,
		PctIdentity: 99.0,
		Length:      500,
		EValue:      evalue,
		BitScore:    bitscore,
	}
}

func resultSet(source string, queries ...QueryHits) *ResultSet {
	set := &ResultSet{Source: source, Queries: queries}
	for qi := range set.Queries {
		for hi := range set.Queries[qi].Hits {
			set.Queries[qi].Hits[hi].QueryFile = source
			set.Queries[qi].Hits[hi].QueryName = set.Queries[qi].Name
			set.Queries[qi].Hits[hi].QuerySeq = set.Queries[qi].Seq
		}
	}
	return set
}

func Test_chooseHighestScore(t *testing.T) {
	tests := []struct {
		name string
		hits []HomologyHit
		want []string // winning subjects
	}{
		{
			"single best",
			[]HomologyHit{hit("A", 1e-10, 200), hit("B", 1e-5, 100)},
			[]string{"A"},
		},
		{
			"ties preserved as a set",
			[]HomologyHit{hit("A", 1e-10, 200), hit("B", 1e-10, 200), hit("C", 1e-10, 150)},
			[]string{"A", "B"},
		},
		{
			"needs min evalue AND max bitscore",
			[]HomologyHit{hit("A", 1e-10, 100), hit("B", 1e-5, 200), hit("C", 1e-10, 200)},
			[]string{"C"},
		},
		{
			"no hits",
			nil,
			nil,
		},
	}

	for _, tt := range tests {
		got := chooseHighestScore(tt.hits)

		var subjects []string
		for _, h := range got {
			subjects = append(subjects, h.Subject)
		}
		if !reflect.DeepEqual(subjects, tt.want) {
			t.Errorf("%s: winners = %v, want %v", tt.name, subjects, tt.want)
		}

		// idempotence: reducing the winners again changes nothing
		if again := chooseHighestScore(got); !reflect.DeepEqual(again, got) {
			t.Errorf("%s: chooseHighestScore is not idempotent", tt.name)
		}
	}
}

func Test_ResolveSingle(t *testing.T) {
	set := resultSet("w.fasta",
		QueryHits{Name: "contig_1", Seq: "AAAA", Hits: []HomologyHit{hit("A", 1e-8, 150)}},
		QueryHits{Name: "contig_2", Seq: "CCCC", Hits: []HomologyHit{hit("B", 1e-12, 300), hit("C", 1e-4, 90)}},
		QueryHits{Name: "contig_3", Seq: "GGGG"}, // zero hits: skipped
	)

	call := ResolveSingle(set)
	if call == nil {
		t.Fatal("expected a call")
	}

	if call.Hit.Subject != "B" {
		t.Errorf("winner = %s, want B (smallest e-value across queries)", call.Hit.Subject)
	}
	if call.QueryName != "contig_2" || call.QuerySeq != "CCCC" || call.QueryFile != "w.fasta" {
		t.Errorf("provenance = %s/%s/%s", call.QueryFile, call.QueryName, call.QuerySeq)
	}
	if call.FromIntersection {
		t.Error("single-set call must not be marked as intersection")
	}
}

func Test_ResolveSingle_stableMin(t *testing.T) {
	// two queries tie on e-value; the first encountered wins
	set := resultSet("w.fasta",
		QueryHits{Name: "contig_1", Hits: []HomologyHit{hit("A", 1e-9, 100)}},
		QueryHits{Name: "contig_2", Hits: []HomologyHit{hit("B", 1e-9, 100)}},
	)

	call := ResolveSingle(set)
	if call == nil || call.Hit.Subject != "A" {
		t.Errorf("winner = %v, want the first query's A", call)
	}
}

func Test_ResolveSingle_noHits(t *testing.T) {
	if call := ResolveSingle(resultSet("w.fasta", QueryHits{Name: "contig_1"})); call != nil {
		t.Errorf("expected no call, got %v", call)
	}
	if call := ResolveSingle(&ResultSet{}); call != nil {
		t.Errorf("expected no call from an empty set, got %v", call)
	}
	if call := ResolveSingle(nil); call != nil {
		t.Errorf("expected no call from a nil set, got %v", call)
	}
}

func Test_ResolveMulti_intersection(t *testing.T) {
	// replicate 1: top hits X (1e-10) and Y (1e-12), tied on score
	rep1 := resultSet("rep1.fasta",
		QueryHits{Name: "c1", Seq: "AA", Hits: []HomologyHit{hit("Y", 1e-12, 300), hit("X", 1e-12, 300)}},
	)
	// replicate 2: only X
	rep2 := resultSet("rep2.fasta",
		QueryHits{Name: "c1", Seq: "TT", Hits: []HomologyHit{hit("X", 1e-8, 200)}},
	)

	// X at 1e-12 from rep1 vs 1e-8 from rep2; rep1's row wins the dedup
	call := ResolveMulti([]*ResultSet{rep1, rep2})
	if call == nil {
		t.Fatal("expected a consensus call")
	}

	if call.Hit.Subject != "X" {
		t.Errorf("consensus = %s, want X (only common accession)", call.Hit.Subject)
	}
	if call.Hit.EValue != 1e-12 {
		t.Errorf("consensus e-value = %g, want the smaller 1e-12", call.Hit.EValue)
	}
	if !call.FromIntersection {
		t.Error("consensus call must be marked FromIntersection")
	}
	if call.QueryFile != "rep1.fasta:rep2.fasta" {
		t.Errorf("query file provenance = %q, want colon-joined", call.QueryFile)
	}
}

// A set contributes the winners of every one of its queries to the
// intersection, not only the winner of its single best query.
func Test_ResolveMulti_winnersAcrossQueries(t *testing.T) {
	// replicate 1: one query, best hit X
	rep1 := resultSet("rep1.fasta",
		QueryHits{Name: "c1", Seq: "AA", Hits: []HomologyHit{hit("X", 1e-10, 200)}},
	)
	// replicate 2: two queries winning different accessions; the set's
	// best-hit table is {X, Y} even though Y scores better
	rep2 := resultSet("rep2.fasta",
		QueryHits{Name: "c1", Seq: "TT", Hits: []HomologyHit{hit("X", 1e-8, 180)}},
		QueryHits{Name: "c2", Seq: "GG", Hits: []HomologyHit{hit("Y", 1e-12, 300)}},
	)

	call := ResolveMulti([]*ResultSet{rep1, rep2})
	if call == nil {
		t.Fatal("expected consensus on X, the only common accession")
	}

	if call.Hit.Subject != "X" {
		t.Errorf("consensus = %s, want X", call.Hit.Subject)
	}
	if call.Hit.EValue != 1e-10 {
		t.Errorf("consensus e-value = %g, want the smaller 1e-10", call.Hit.EValue)
	}
	if !call.FromIntersection {
		t.Error("consensus call must be marked FromIntersection")
	}
	if call.QueryFile != "rep1.fasta:rep2.fasta" {
		t.Errorf("query file provenance = %q, want colon-joined", call.QueryFile)
	}
}

func Test_ResolveMulti_noConsensus(t *testing.T) {
	rep1 := resultSet("rep1.fasta", QueryHits{Name: "c1", Hits: []HomologyHit{hit("A", 1e-10, 100)}})
	rep2 := resultSet("rep2.fasta", QueryHits{Name: "c1", Hits: []HomologyHit{hit("B", 1e-10, 100)}})

	if call := ResolveMulti([]*ResultSet{rep1, rep2}); call != nil {
		t.Errorf("expected no consensus, got %v", call)
	}
}

func Test_ResolveMulti_singleSurvivor(t *testing.T) {
	rep1 := resultSet("rep1.fasta", QueryHits{Name: "c1", Hits: []HomologyHit{hit("A", 1e-10, 100)}})
	rep2 := resultSet("rep2.fasta", QueryHits{Name: "c1"}) // no hits

	call := ResolveMulti([]*ResultSet{rep1, rep2})
	if call == nil {
		t.Fatal("expected the surviving set's call")
	}
	if call.FromIntersection {
		t.Error("a single surviving set is returned verbatim, not as intersection")
	}
	if call.Hit.Subject != "A" {
		t.Errorf("call = %s, want A", call.Hit.Subject)
	}
}

func Test_ResolveMulti_allEmpty(t *testing.T) {
	if call := ResolveMulti([]*ResultSet{resultSet("a"), resultSet("b")}); call != nil {
		t.Errorf("expected no call, got %v", call)
	}
	if call := ResolveMulti(nil); call != nil {
		t.Errorf("expected no call from no sets, got %v", call)
	}
}

func Test_ResolveMulti_orderIndependent(t *testing.T) {
	rep1 := resultSet("rep1.fasta",
		QueryHits{Name: "c1", Hits: []HomologyHit{hit("X", 1e-10, 200), hit("Z", 1e-10, 200)}})
	rep2 := resultSet("rep2.fasta",
		QueryHits{Name: "c1", Hits: []HomologyHit{hit("Z", 1e-8, 180), hit("X", 1e-8, 180)}})
	rep3 := resultSet("rep3.fasta",
		QueryHits{Name: "c1", Hits: []HomologyHit{hit("X", 1e-6, 150), hit("Z", 1e-6, 150)}})

	perms := [][]*ResultSet{
		{rep1, rep2, rep3},
		{rep3, rep1, rep2},
		{rep2, rep3, rep1},
	}

	first := ResolveMulti(perms[0])
	if first == nil {
		t.Fatal("expected a consensus call")
	}

	for i, perm := range perms[1:] {
		got := ResolveMulti(perm)
		if got == nil {
			t.Fatalf("permutation %d: expected a call", i+1)
		}
		if got.Hit.Subject != first.Hit.Subject || got.Hit.EValue != first.Hit.EValue {
			t.Errorf("permutation %d: call %s@%g != %s@%g",
				i+1, got.Hit.Subject, got.Hit.EValue, first.Hit.Subject, first.Hit.EValue)
		}
		if len(got.Table) != len(first.Table) {
			t.Errorf("permutation %d: table size %d != %d", i+1, len(got.Table), len(first.Table))
		}
	}
}

func Test_Call_Alternatives(t *testing.T) {
	call := &Call{
		Hit: hit("X", 1e-10, 200),
		Table: []HomologyHit{
			hit("X", 1e-10, 200),
			hit("Y", 1e-8, 180),
			hit("Z", 1e-6, 150),
			hit("Y", 1e-5, 120),
		},
	}

	if got := call.Alternatives(); !reflect.DeepEqual(got, []string{"Y", "Z"}) {
		t.Errorf("Alternatives = %v, want [Y Z]", got)
	}
}

// A call restored from a hand-edited or truncated calls.json can carry
// an empty table.
func Test_Call_Alternatives_emptyTable(t *testing.T) {
	for _, call := range []*Call{
		{Hit: hit("X", 1e-10, 200)},
		{Hit: hit("X", 1e-10, 200), Table: []HomologyHit{hit("X", 1e-10, 200)}},
	} {
		if got := call.Alternatives(); got != nil {
			t.Errorf("Alternatives = %v, want nil", got)
		}
	}
}
