package match

import "github.com/seeflaw/seeflaw/internal/document"

type candidate struct {
	actual int // index into the actual rows
	score  int
}

type openRow struct {
	expected   int
	candidates []candidate // remaining actual rows, original order
}

// best returns the position of the highest scoring candidate; the first
// one wins a tie.
func (o *openRow) best() (pos, score int) {
	pos, score = -1, -1
	for i, c := range o.candidates {
		if c.score > score {
			pos, score = i, c.score
		}
	}
	return pos, score
}

func (o *openRow) drop(actual int) {
	for i, c := range o.candidates {
		if c.actual == actual {
			o.candidates = append(o.candidates[:i], o.candidates[i+1:]...)
			return
		}
	}
}

// MatchRows pairs the expected rows of a row-set call with the rows the
// fixture returned. The result has max(len(expected), len(actual)) entries:
// entry i is the actual row assigned to expected row i, or nil when none
// was left for it, and entries from len(expected) on hold the unassigned
// actual rows in their original order.
//
// Pairing runs in two passes. First every expected row, in order, takes the
// first remaining actual row that matches on all keys. Rows left over are
// then paired greedily by the number of matching keys: each round assigns
// the highest scoring pair, the earliest expected row winning a tie and,
// within a row, the earliest actual row. The result is not a maximum
// weight matching and callers rely on this exact order.
func (m *Matcher) MatchRows(expected []*document.Fields, actual []map[string]Value, keys []string, tolerance *document.Fields) []map[string]Value {
	matched := make([]map[string]Value, max(len(expected), len(actual)))
	assigned := make([]bool, len(actual))

	pool := make([]int, len(actual))
	for i := range pool {
		pool[i] = i
	}
	take := func(ai int) {
		assigned[ai] = true
		for i, p := range pool {
			if p == ai {
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
	}

	var open []*openRow
	for ei, exp := range expected {
		row := &openRow{expected: ei}
		exact := -1
		for _, ai := range pool {
			score := m.score(exp, actual[ai], keys, tolerance)
			if score == len(keys) {
				exact = ai
				break
			}
			row.candidates = append(row.candidates, candidate{actual: ai, score: score})
		}
		if exact < 0 {
			open = append(open, row)
			continue
		}
		matched[ei] = actual[exact]
		take(exact)
		for _, o := range open {
			o.drop(exact)
		}
	}

	for range min(len(open), len(pool)) {
		bestRow, bestPos, bestScore := -1, -1, -1
		for i, o := range open {
			pos, score := o.best()
			if pos >= 0 && score > bestScore {
				bestRow, bestPos, bestScore = i, pos, score
			}
		}
		if bestRow < 0 {
			break
		}
		row := open[bestRow]
		ai := row.candidates[bestPos].actual
		matched[row.expected] = actual[ai]
		take(ai)
		open = append(open[:bestRow], open[bestRow+1:]...)
		for _, o := range open {
			o.drop(ai)
		}
	}

	next := len(expected)
	for ai, row := range actual {
		if !assigned[ai] {
			matched[next] = row
			next++
		}
	}
	return matched
}

func (m *Matcher) score(expected *document.Fields, actual map[string]Value, keys []string, tolerance *document.Fields) int {
	n := 0
	for _, key := range keys {
		if m.KeyMatches(key, expected, actual, tolerance) {
			n++
		}
	}
	return n
}
