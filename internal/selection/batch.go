package selection

import (
	"sort"

	"github.com/kikiluvv/framesift/internal/frames"
)

// Batch picks the maxFrames lowest-scoring records across all sources and
// returns them ordered by label.
//
// Scores from different sources are compared directly even though each was
// computed against its own stream, so a jittery camera can crowd out a
// quiet one.
func Batch(sources [][]frames.Record, maxFrames int) []frames.Record {
	var all []frames.Record
	for _, records := range sources {
		all = append(all, records...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score < all[j].Score
	})

	if maxFrames < 0 {
		maxFrames = 0
	}
	if len(all) > maxFrames {
		all = all[:maxFrames]
	}

	frames.SortByLabel(all)
	return all
}
