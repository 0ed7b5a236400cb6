package fragindex

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidIndex = errors.New("invalid fragment index")

// Fragment is one moof and the mdat that follows it.
type Fragment struct {
	Position   int64 `json:"position"`
	Size       int64 `json:"size"`
	TimeUs     int64 `json:"time_us"`
	DurationUs int64 `json:"duration_us"`
}

// Index maps presentation time to fragment byte offsets. It is immutable once
// built; every accessor returns a copy so an Index can be shared between
// goroutines.
type Index struct {
	fragments []Fragment
	timescale uint32
}

func NewIndex(fragments []Fragment, timescale uint32) Index {
	if len(fragments) == 0 {
		return Index{timescale: timescale}
	}
	copied := make([]Fragment, len(fragments))
	copy(copied, fragments)
	return Index{fragments: copied, timescale: timescale}
}

// EmptyIndex is the unseekable index used when nothing could be scanned.
func EmptyIndex() Index {
	return Index{timescale: defaultTimescale}
}

func (idx Index) Len() int {
	return len(idx.fragments)
}

func (idx Index) IsSeekable() bool {
	return len(idx.fragments) > 0
}

func (idx Index) Timescale() uint32 {
	return idx.timescale
}

func (idx Index) DurationUs() int64 {
	if len(idx.fragments) == 0 {
		return 0
	}
	last := idx.fragments[len(idx.fragments)-1]
	return addSaturating(last.TimeUs, last.DurationUs)
}

// FragmentIndex returns the index of the last fragment starting at or before
// timeUs. Targets before the first fragment resolve to 0.
func (idx Index) FragmentIndex(timeUs int64) int {
	n := len(idx.fragments)
	if n == 0 {
		return 0
	}
	i := sort.Search(n, func(i int) bool {
		return idx.fragments[i].TimeUs > timeUs
	}) - 1
	if i < 0 {
		return 0
	}
	return i
}

// SeekPosition returns the byte offset of the fragment covering timeUs, or 0
// for an empty index.
func (idx Index) SeekPosition(timeUs int64) int64 {
	if len(idx.fragments) == 0 {
		return 0
	}
	return idx.fragments[idx.FragmentIndex(timeUs)].Position
}

func (idx Index) TimeUs(i int) int64 {
	if i < 0 || i >= len(idx.fragments) {
		return 0
	}
	return idx.fragments[i].TimeUs
}

func (idx Index) Fragment(i int) (Fragment, bool) {
	if i < 0 || i >= len(idx.fragments) {
		return Fragment{}, false
	}
	return idx.fragments[i], true
}

func (idx Index) Fragments() []Fragment {
	out := make([]Fragment, len(idx.fragments))
	copy(out, idx.fragments)
	return out
}

func (idx Index) Sizes() []int64 {
	return idx.column(func(f Fragment) int64 { return f.Size })
}

func (idx Index) Offsets() []int64 {
	return idx.column(func(f Fragment) int64 { return f.Position })
}

func (idx Index) DurationsUs() []int64 {
	return idx.column(func(f Fragment) int64 { return f.DurationUs })
}

func (idx Index) TimesUs() []int64 {
	return idx.column(func(f Fragment) int64 { return f.TimeUs })
}

func (idx Index) column(get func(Fragment) int64) []int64 {
	out := make([]int64, len(idx.fragments))
	for i, f := range idx.fragments {
		out[i] = get(f)
	}
	return out
}

// Validate checks the ordering invariants of the index. Indexes produced by
// ScanFragments always pass; it exists for indexes loaded from elsewhere.
func (idx Index) Validate() error {
	var clock int64
	for i, f := range idx.fragments {
		if f.Size <= 0 {
			return fmt.Errorf("%w: fragment %d has size %d", ErrInvalidIndex, i, f.Size)
		}
		if f.DurationUs < 0 {
			return fmt.Errorf("%w: fragment %d has negative duration", ErrInvalidIndex, i)
		}
		if i > 0 && f.Position <= idx.fragments[i-1].Position {
			return fmt.Errorf("%w: fragment %d position %d not after %d", ErrInvalidIndex, i, f.Position, idx.fragments[i-1].Position)
		}
		if f.TimeUs != clock {
			return fmt.Errorf("%w: fragment %d starts at %dus, expected %dus", ErrInvalidIndex, i, f.TimeUs, clock)
		}
		clock = addSaturating(clock, f.DurationUs)
	}
	return nil
}
