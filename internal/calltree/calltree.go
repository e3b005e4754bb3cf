package calltree

import (
	"context"
	"sort"

	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
)

// checkEvery is how many samples are processed between two context checks.
const checkEvery = 1024

type (
	// TimeMap holds a duration per frame.
	TimeMap map[frame.Frame]uint64

	// CallTree is the merged call graph of a set of performance samples. It's
	// immutable once built and can be queried concurrently.
	CallTree struct {
		samples      []sample.Performance
		filter       scope.Filter
		scopedTotals bool

		inclusive TimeMap
		self      TimeMap
		total     uint64
		accounted int
	}

	// FrameTime is the accounting of a single frame.
	FrameTime struct {
		Frame       frame.Frame `json:"frame"`
		InclusiveNS uint64      `json:"inclusive_ns"`
		SelfNS      uint64      `json:"self_ns"`
	}

	options struct {
		filter       scope.Filter
		scopedTotals bool
	}

	Option func(*options)
)

// WithScope sets the scope used for grouping keys. Unless WithScopedTotals is
// also given, frames out of scope still count towards the time maps.
func WithScope(filter scope.Filter) Option {
	return func(o *options) {
		o.filter = filter
	}
}

// WithScopedTotals restricts the time maps to in-scope frames. Self time then
// goes to the innermost in-scope frame and samples without any in-scope
// frame are left out.
func WithScopedTotals() Option {
	return func(o *options) {
		o.scopedTotals = true
	}
}

// Build computes inclusive and self time for every frame of samples. A frame
// appearing several times in the same stack (recursion) is counted once for
// that sample. Samples without frames carry no time.
func Build(ctx context.Context, samples []sample.Performance, opts ...Option) (*CallTree, error) {
	o := options{filter: scope.EntireProgram}
	for _, opt := range opts {
		opt(&o)
	}
	o.filter = scope.OrDefault(o.filter)

	ct := &CallTree{
		samples:      samples,
		filter:       o.filter,
		scopedTotals: o.scopedTotals,
		inclusive:    make(TimeMap),
		self:         make(TimeMap),
	}
	seen := make(map[frame.Frame]struct{})
	for i, s := range samples {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		frames := s.Frames
		if o.scopedTotals {
			frames = scope.Apply(o.filter, frames)
		}
		if len(frames) == 0 {
			continue
		}
		account(ct.inclusive, ct.self, frames, s.Duration, seen)
		ct.total += s.Duration
		ct.accounted++
	}
	return ct, nil
}

func account(inclusive, self TimeMap, frames []frame.Frame, d uint64, seen map[frame.Frame]struct{}) {
	clear(seen)
	for _, f := range frames {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		inclusive[f] += d
	}
	self[frames[len(frames)-1]] += d
}

// TimeMaps returns the inclusive and self time of every frame. The maps are
// copies and can be modified by the caller.
func (ct *CallTree) TimeMaps() (TimeMap, TimeMap) {
	return ct.inclusive.clone(), ct.self.clone()
}

// CalleesTimeMaps accounts the frames called below prefix, over the samples
// whose in-scope stack starts with prefix. Time spent in the last frame of
// prefix itself isn't attributed to any callee.
func (ct *CallTree) CalleesTimeMaps(prefix []frame.Frame) (TimeMap, TimeMap) {
	inclusive := make(TimeMap)
	self := make(TimeMap)
	seen := make(map[frame.Frame]struct{})
	for _, s := range ct.samples {
		frames := scope.Apply(ct.filter, s.Frames)
		if len(frames) <= len(prefix) || !hasPrefix(frames, prefix) {
			continue
		}
		account(inclusive, self, frames[len(prefix):], s.Duration, seen)
	}
	return inclusive, self
}

func hasPrefix(frames, prefix []frame.Frame) bool {
	for i, f := range prefix {
		if frames[i] != f {
			return false
		}
	}
	return true
}

// Inclusive returns the inclusive time of f.
func (ct *CallTree) Inclusive(f frame.Frame) uint64 {
	return ct.inclusive[f]
}

// Self returns the self time of f.
func (ct *CallTree) Self(f frame.Frame) uint64 {
	return ct.self[f]
}

// Total returns the summed duration of every accounted sample, which is also
// the sum of all self times.
func (ct *CallTree) Total() uint64 {
	return ct.total
}

// SampleCount returns the number of samples that carried time.
func (ct *CallTree) SampleCount() int {
	return ct.accounted
}

// Samples returns the samples the tree was built from.
func (ct *CallTree) Samples() []sample.Performance {
	return ct.samples
}

// Scope returns the scope used for grouping keys.
func (ct *CallTree) Scope() scope.Filter {
	return ct.filter
}

// Percent returns part as a share of the tree's total time.
func (ct *CallTree) Percent(part uint64) int64 {
	return grouping.Percent(int64(part), int64(ct.total))
}

// Frames lists the accounting of every frame, most expensive first.
func (ct *CallTree) Frames() []FrameTime {
	frames := make([]FrameTime, 0, len(ct.inclusive))
	for f, inclusive := range ct.inclusive {
		frames = append(frames, FrameTime{Frame: f, InclusiveNS: inclusive, SelfNS: ct.self[f]})
	}
	sort.Slice(frames, func(i, j int) bool {
		if frames[i].InclusiveNS != frames[j].InclusiveNS {
			return frames[i].InclusiveNS > frames[j].InclusiveNS
		}
		if frames[i].SelfNS != frames[j].SelfNS {
			return frames[i].SelfNS > frames[j].SelfNS
		}
		return frames[i].Frame < frames[j].Frame
	})
	return frames
}

func (m TimeMap) clone() TimeMap {
	c := make(TimeMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Sum adds up every value of the map.
func (m TimeMap) Sum() uint64 {
	var sum uint64
	for _, v := range m {
		sum += v
	}
	return sum
}
