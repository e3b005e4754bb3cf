package grouping

import (
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
)

// Direction selects the end of the stack depths are counted from.
type Direction int

const (
	// TopDown counts from the outermost frame, building root to leaf trees.
	TopDown Direction = iota
	// BottomUp counts from the innermost frame, building leaf to root trees.
	BottomUp
)

func (d Direction) String() string {
	if d == BottomUp {
		return "bottom_up"
	}
	return "top_down"
}

// Stacked is implemented by every sample kind that carries frames.
type Stacked interface {
	Stack() []frame.Frame
}

// FrameAt classifies a sample by its in-scope frame at depth.
func FrameAt[S Stacked](direction Direction, filter scope.Filter) Classifier[S, frame.Frame] {
	return func(s S, depth int) (frame.Frame, bool) {
		frames := scope.Apply(filter, s.Stack())
		return frameAt(frames, direction, depth)
	}
}

func frameAt(frames []frame.Frame, direction Direction, depth int) (frame.Frame, bool) {
	if depth < 0 || depth >= len(frames) {
		return "", false
	}
	if direction == BottomUp {
		return frames[len(frames)-1-depth], true
	}
	return frames[depth], true
}

// Count scores a group by its number of members.
func Count[S any]() Metric[S] {
	return func(members []S) int64 {
		return int64(len(members))
	}
}

// SumOf scores a group by the sum of weight over its members.
func SumOf[S any](weight func(S) int64) Metric[S] {
	return func(members []S) int64 {
		var sum int64
		for _, m := range members {
			sum += weight(m)
		}
		return sum
	}
}

// PercentOf scores a group by its share of total, in whole percents.
func PercentOf[S any](weight func(S) int64, total int64) Metric[S] {
	sum := SumOf(weight)
	return func(members []S) int64 {
		return Percent(sum(members), total)
	}
}

// Percent returns part as a percentage of whole using integer division. A
// zero whole yields 0.
func Percent(part, whole int64) int64 {
	if whole == 0 {
		return 0
	}
	return part * 100 / whole
}
