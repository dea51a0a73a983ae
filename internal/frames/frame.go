package frames

import (
	"fmt"
	"sort"

	"github.com/kikiluvv/framesift/pkg/util"
)

// Sentinel is the score given to the first frame of every source so that it
// always ranks as the most informative frame.
const Sentinel = -9999.0

// Record is a captured or decoded frame waiting for selection
type Record struct {
	Label  string
	Source string
	Seq    int
	Score  float64

	// Exactly one of Data or Path carries the frame payload.
	Data []byte
	Path string
}

// Keyframe is a selected, encoded frame ready for a vision provider
type Keyframe struct {
	Image string  `json:"image,omitempty"` // base64 JPEG
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// StreamLabel names a frame captured from a live source
func StreamLabel(name string, index, seq int, useName bool) string {
	if useName && name != "" {
		return fmt.Sprintf("%s frame %d", name, seq)
	}
	return fmt.Sprintf("camera %d frame %d", index, seq)
}

// VideoLabel names the k-th surviving frame of a video
func VideoLabel(videoPath string, k int, useName bool) string {
	if useName {
		return fmt.Sprintf("%s (frame %d)", util.BaseName(videoPath), k)
	}
	return fmt.Sprintf("Video frame %d", k)
}

// SortBySeq orders records chronologically within a single source
func SortBySeq(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})
}

// SortByLabel orders records by label, comparing digit runs numerically
func SortByLabel(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return util.NaturalLess(records[i].Label, records[j].Label)
	})
}

// Set accumulates keyframes for a single provider request
type Set struct {
	keyframes []Keyframe
}

// NewSet creates an empty keyframe set
func NewSet() *Set {
	return &Set{
		keyframes: make([]Keyframe, 0),
	}
}

// Add appends a keyframe
func (s *Set) Add(kf Keyframe) {
	s.keyframes = append(s.keyframes, kf)
}

// Get retrieves a keyframe by label
func (s *Set) Get(label string) (Keyframe, bool) {
	for _, kf := range s.keyframes {
		if kf.Label == label {
			return kf, true
		}
	}
	return Keyframe{}, false
}

// All returns all keyframes in insertion order
func (s *Set) All() []Keyframe {
	return s.keyframes
}

// Len returns the number of keyframes
func (s *Set) Len() int {
	return len(s.keyframes)
}
