package selection

import (
	"sort"

	"github.com/kikiluvv/framesift/internal/frames"
)

// Pool keeps the lowest-scoring records seen so far, ordered by score.
// Records with equal scores keep their arrival order.
type Pool struct {
	max     int
	records []frames.Record
}

// NewPool creates a pool holding at most max records
func NewPool(max int) *Pool {
	if max < 0 {
		max = 0
	}
	return &Pool{
		max:     max,
		records: make([]frames.Record, 0, max+1),
	}
}

// Insert adds rec at its score position and evicts the highest score when
// the pool is over capacity. It reports whether rec is still in the pool.
func (p *Pool) Insert(rec frames.Record) bool {
	i := sort.Search(len(p.records), func(i int) bool {
		return p.records[i].Score > rec.Score
	})

	p.records = append(p.records, frames.Record{})
	copy(p.records[i+1:], p.records[i:])
	p.records[i] = rec

	if len(p.records) > p.max {
		p.records = p.records[:p.max]
		return i < p.max
	}
	return true
}

// Len returns the number of records held
func (p *Pool) Len() int {
	return len(p.records)
}

// Records returns the pool contents in ascending score order
func (p *Pool) Records() []frames.Record {
	out := make([]frames.Record, len(p.records))
	copy(out, p.records)
	return out
}
