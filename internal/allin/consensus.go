package allin

import (
	"sort"
	"strings"
)

// Call is the consensus identification for one well.
type Call struct {
	// the accepted best hit
	Hit HomologyHit

	// the full best-hit table the call was drawn from; Hit is
	// Table[0], lower-ranked candidates follow
	Table []HomologyHit

	// provenance; colon-joined over the unique contributing values
	// when the call came from a replicate intersection
	QueryFile string
	QueryName string
	QuerySeq  string

	// true when the call required agreement across multiple
	// ContigSets
	FromIntersection bool
}

// Alternatives returns the distinct subject accessions of the
// lower-ranked rows of the call table, in table order. They surface
// ambiguous identifications downstream.
func (c *Call) Alternatives() []string {
	if len(c.Table) < 2 {
		return nil
	}

	seen := map[string]bool{c.Hit.Subject: true}
	var alts []string
	for _, h := range c.Table[1:] {
		if !seen[h.Subject] {
			seen[h.Subject] = true
			alts = append(alts, h.Subject)
		}
	}
	return alts
}

// chooseHighestScore reduces one query's hits to the winning subset:
// every hit whose e-value equals the minimum e-value AND whose
// bit-score equals the maximum bit-score of the query. Ties are kept
// as a set; identical top scores from distinct subjects are
// biologically meaningful and must survive to the report.
func chooseHighestScore(hits []HomologyHit) []HomologyHit {
	if len(hits) == 0 {
		return nil
	}

	minE := hits[0].EValue
	maxBit := hits[0].BitScore
	for _, h := range hits[1:] {
		if h.EValue < minE {
			minE = h.EValue
		}
		if h.BitScore > maxBit {
			maxBit = h.BitScore
		}
	}

	var winners []HomologyHit
	for _, h := range hits {
		if h.EValue == minE && h.BitScore == maxBit {
			winners = append(winners, h)
		}
	}

	return winners
}

// ResolveSingle resolves one ContigSet's search results into a call,
// or nil when no query produced a hit.
//
// Each query is reduced to its winning tie set; among queries, the
// one with the smallest minimum e-value wins, first encountered on a
// tie (stable minimum).
func ResolveSingle(set *ResultSet) *Call {
	if set == nil {
		return nil
	}

	var best []HomologyHit
	bestE := 0.0

	for _, q := range set.Queries {
		winners := chooseHighestScore(q.Hits)
		if len(winners) == 0 {
			// queries with zero hits are skipped, not treated
			// as a winning empty set
			continue
		}

		if best == nil || winners[0].EValue < bestE {
			best = winners
			bestE = winners[0].EValue
		}
	}

	if best == nil {
		return nil
	}

	return &Call{
		Hit:       best[0],
		Table:     best,
		QueryFile: best[0].QueryFile,
		QueryName: best[0].QueryName,
		QuerySeq:  best[0].QuerySeq,
	}
}

// bestHits is the best-hit table one ContigSet brings to a
// multi-replicate intersection: the winning tie set of every query,
// concatenated in query order. A set whose queries win different
// accessions contributes all of them.
func bestHits(set *ResultSet) []HomologyHit {
	if set == nil {
		return nil
	}

	var table []HomologyHit
	for _, q := range set.Queries {
		table = append(table, chooseHighestScore(q.Hits)...)
	}
	return table
}

// ResolveMulti resolves the independent search results of a well that
// was assembled from several replicates.
//
// Sets whose queries produced no hit are dropped; a single surviving
// set is resolved on its own and returned verbatim. With several, only
// subject accessions present in every set's best-hit table survive;
// their rows are pooled, sorted by ascending e-value and deduplicated
// by accession (keeping the lowest e-value row). An empty intersection
// means no consensus: nil.
func ResolveMulti(sets []*ResultSet) *Call {
	var tables [][]HomologyHit
	var survivors []*ResultSet
	for _, set := range sets {
		if t := bestHits(set); len(t) > 0 {
			tables = append(tables, t)
			survivors = append(survivors, set)
		}
	}

	switch len(tables) {
	case 0:
		return nil
	case 1:
		return ResolveSingle(survivors[0])
	}

	// accessions common to every per-set table
	common := accessionSet(tables[0])
	for _, t := range tables[1:] {
		next := accessionSet(t)
		for acc := range common {
			if !next[acc] {
				delete(common, acc)
			}
		}
	}
	if len(common) == 0 {
		return nil
	}

	var rows []HomologyHit
	for _, t := range tables {
		for _, h := range t {
			if common[h.Subject] {
				rows = append(rows, h)
			}
		}
	}

	// provenance follows set order, not score order
	queryFile := joinUnique(rows, func(h HomologyHit) string { return h.QueryFile })
	queryName := joinUnique(rows, func(h HomologyHit) string { return h.QueryName })
	querySeq := joinUnique(rows, func(h HomologyHit) string { return h.QuerySeq })

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].EValue < rows[j].EValue })

	seen := make(map[string]bool, len(common))
	table := make([]HomologyHit, 0, len(common))
	for _, h := range rows {
		if !seen[h.Subject] {
			seen[h.Subject] = true
			table = append(table, h)
		}
	}

	return &Call{
		Hit:              table[0],
		Table:            table,
		QueryFile:        queryFile,
		QueryName:        queryName,
		QuerySeq:         querySeq,
		FromIntersection: true,
	}
}

func accessionSet(hits []HomologyHit) map[string]bool {
	set := make(map[string]bool, len(hits))
	for _, h := range hits {
		set[h.Subject] = true
	}
	return set
}

// joinUnique colon-joins one provenance field over the contributing
// rows, keeping the first occurrence of each distinct value.
func joinUnique(rows []HomologyHit, field func(HomologyHit) string) string {
	seen := make(map[string]bool, len(rows))
	var vals []string
	for _, h := range rows {
		v := field(h)
		if !seen[v] {
			seen[v] = true
			vals = append(vals, v)
		}
	}
	return strings.Join(vals, ":")
}
