package calltree

import (
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
)

type (
	// Tree is a lazily expanded view over the samples of a call tree.
	Tree = grouping.Tree[sample.Performance, frame.Frame]

	// Node is a merged path node of a Tree.
	Node = grouping.Node[sample.Performance, frame.Frame]

	frameSet map[frame.Frame]struct{}
)

func duration(s sample.Performance) int64 {
	return int64(s.Duration)
}

// TopDown groups samples root to leaf, the hot path view.
func (ct *CallTree) TopDown() *Tree {
	return grouping.NewTree(ct.samples, grouping.FrameAt[sample.Performance](grouping.TopDown, ct.filter), grouping.SumOf(duration))
}

// BottomUp groups samples leaf to root, starting from executing frames.
func (ct *CallTree) BottomUp() *Tree {
	return grouping.NewTree(ct.samples, grouping.FrameAt[sample.Performance](grouping.BottomUp, ct.filter), grouping.SumOf(duration))
}

// Callers builds the tree of callers of targets: roots are the targets and
// each level below is one caller further away. The innermost occurrence of a
// target anchors a sample.
func (ct *CallTree) Callers(targets []frame.Frame) *Tree {
	set := newFrameSet(targets)
	var classify grouping.Classifier[sample.Performance, frame.Frame] = func(s sample.Performance, depth int) (frame.Frame, bool) {
		frames := scope.Apply(ct.filter, s.Frames)
		for i := len(frames) - 1; i >= 0; i-- {
			if !set.has(frames[i]) {
				continue
			}
			if i-depth < 0 {
				return "", false
			}
			return frames[i-depth], true
		}
		return "", false
	}
	return grouping.NewTree(ct.samples, classify, grouping.SumOf(duration))
}

// Callees builds the tree of functions called by targets: roots are the
// targets and each level below is one call deeper. The outermost occurrence
// of a target anchors a sample.
func (ct *CallTree) Callees(targets []frame.Frame) *Tree {
	set := newFrameSet(targets)
	var classify grouping.Classifier[sample.Performance, frame.Frame] = func(s sample.Performance, depth int) (frame.Frame, bool) {
		frames := scope.Apply(ct.filter, s.Frames)
		for i, f := range frames {
			if !set.has(f) {
				continue
			}
			if i+depth >= len(frames) {
				return "", false
			}
			return frames[i+depth], true
		}
		return "", false
	}
	return grouping.NewTree(ct.samples, classify, grouping.SumOf(duration))
}

// Counts returns how many members pass through the targets and how many of
// them were executing a target at the time.
func (ct *CallTree) Counts(members []sample.Performance, targets []frame.Frame) (calls, self int) {
	set := newFrameSet(targets)
	for _, s := range members {
		frames := scope.Apply(ct.filter, s.Frames)
		if len(frames) == 0 {
			continue
		}
		for _, f := range frames {
			if set.has(f) {
				calls++
				break
			}
		}
		if set.has(frames[len(frames)-1]) {
			self++
		}
	}
	return calls, self
}

func newFrameSet(frames []frame.Frame) frameSet {
	s := make(frameSet, len(frames))
	for _, f := range frames {
		s[f] = struct{}{}
	}
	return s
}

func (s frameSet) has(f frame.Frame) bool {
	_, ok := s[f]
	return ok
}
