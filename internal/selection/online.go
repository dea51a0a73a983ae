package selection

import (
	"image"

	"github.com/kikiluvv/framesift/internal/frames"
	"github.com/kikiluvv/framesift/internal/scoring"
)

// Online selects keyframes from a single ordered stream without buffering
// it. Only the previous frame's luma plane is retained between calls.
type Online struct {
	scorer scoring.Scorer
	pool   *Pool

	prevGray *image.Gray
	prev     frames.Record
	seen     int
}

// NewOnline creates a selector keeping at most maxFrames records
func NewOnline(scorer scoring.Scorer, maxFrames int) *Online {
	return &Online{
		scorer: scorer,
		pool:   NewPool(maxFrames),
	}
}

// Push feeds the next frame of the stream. A frame is committed to the pool
// only once its successor has arrived, carrying the score it received
// against its own predecessor.
func (o *Online) Push(rec frames.Record, gray *image.Gray) {
	o.seen++

	if o.prevGray == nil {
		rec.Score = frames.Sentinel
	} else {
		rec.Score = o.scorer.Score(o.prevGray, gray)
		o.pool.Insert(o.prev)
	}

	o.prev = rec
	o.prevGray = gray
}

// Seen returns how many frames were pushed
func (o *Online) Seen() int {
	return o.seen
}

// Result returns the selected records in stream order. A stream that never
// committed anything yields its last frame with a neutral score.
func (o *Online) Result() []frames.Record {
	records := o.pool.Records()
	if len(records) == 0 && o.seen > 0 {
		fallback := o.prev
		fallback.Score = 0
		records = append(records, fallback)
	}

	frames.SortBySeq(records)
	return records
}
