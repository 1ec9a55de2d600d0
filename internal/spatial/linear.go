package spatial

import (
	"github.com/skmto/arktwim-sample/internal/types"
)

// Linear scans every record. It is the reference implementation and is
// sufficient for populations of a few hundred agents.
type Linear struct{}

// Nearest returns at most q.Limit records closest to q.Origin
func (Linear) Nearest(records []types.AgentRecord, q Query) ([]Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return []Match{}, nil
	}

	matches := make([]Match, 0, len(records))
	for i := range records {
		if !q.admits(&records[i]) {
			continue
		}
		d := Distance(q.Origin, records[i].Pose.Position)
		matches = append(matches, Match{Record: records[i], Distance: d})
	}
	return finish(matches, q), nil
}
