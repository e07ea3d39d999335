package results

import (
	"github.com/withObsrvr/binder-annotator/internal/submissions"
)

// Concat joins batch tables in order.
func Concat(tables ...[]Row) []Row {
	n := 0
	for _, t := range tables {
		n += len(t)
	}
	out := make([]Row, 0, n)
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}

// Combine left-joins rows onto the submission table: the output has one row
// per submission, in table order. Submissions without a row get a
// null-filled row with status "missing"; rows for ids outside the table are
// dropped. When an id has several rows the last one wins.
func Combine(rows []Row, subs []submissions.Submission) []Row {
	byID := make(map[string]Row, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	out := make([]Row, 0, len(subs))
	for _, s := range subs {
		r, ok := byID[s.ID]
		if !ok {
			r = Row{ID: s.ID, Status: StatusMissing}
		}
		r.Sequence = s.Sequence
		out = append(out, r)
	}
	Normalize(out)
	return out
}
