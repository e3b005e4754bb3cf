package nodetree

import (
	"context"

	"github.com/JetBrains/intellij-plugins-sub025/internal/calltree"
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/location"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
)

type (
	Node struct {
		Frame         frame.Frame `json:"frame"`
		Fingerprint   uint64      `json:"fingerprint"`
		IsApplication bool        `json:"is_application"`
		Name          string      `json:"name"`
		Package       string      `json:"package,omitempty"`
		Class         string      `json:"class,omitempty"`
		Method        string      `json:"method,omitempty"`
		Path          string      `json:"path,omitempty"`
		Line          uint32      `json:"line,omitempty"`
		InclusiveNS   uint64      `json:"inclusive_ns"`
		SelfNS        uint64      `json:"self_ns"`
		Percent       int64       `json:"percent"`
		Calls         int         `json:"calls,omitempty"`
		SelfCalls     int         `json:"self_calls,omitempty"`
		Children      []*Node     `json:"children,omitempty"`
	}

	Options struct {
		// MaxDepth bounds the number of levels materialized, 0 means no bound.
		MaxDepth int
		// Total is the denominator of Percent.
		Total uint64
		// Application tells application frames from library ones.
		Application scope.Filter
		// Counts, when set, fills Calls and SelfCalls from a node's members.
		Counts func(members []sample.Performance) (calls, self int)
	}
)

func NodeFromFrame(f frame.Frame, isApplication bool) *Node {
	l := frame.Parse(f)
	return &Node{
		Frame:         f,
		Fingerprint:   f.Fingerprint(),
		IsApplication: isApplication,
		Name:          f.Name(),
		Package:       l.Package,
		Class:         l.Class,
		Method:        l.Method,
	}
}

// FromGrouping materializes the lazily expanded tree t.
func FromGrouping(t *calltree.Tree, opts Options) []*Node {
	return FromChildren(t, nil, opts)
}

// FromChildren materializes the part of t found below path. MaxDepth counts
// levels from there.
func FromChildren(t *calltree.Tree, path []frame.Frame, opts Options) []*Node {
	if opts.Application == nil {
		opts.Application = scope.NoLibraries
	}
	return fromNodes(t, t.Children(path), 1, opts)
}

func fromNodes(t *calltree.Tree, nodes []*calltree.Node, depth int, opts Options) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, gn := range nodes {
		children := t.Expand(gn)
		n := NodeFromFrame(gn.Key, opts.Application.Matches(gn.Key))
		n.InclusiveNS = uint64(gn.Metric)
		n.SelfNS = n.InclusiveNS - uint64(sumMetrics(children))
		n.Percent = grouping.Percent(gn.Metric, int64(opts.Total))
		if opts.Counts != nil {
			n.Calls, n.SelfCalls = opts.Counts(gn.Members)
		}
		if opts.MaxDepth <= 0 || depth < opts.MaxDepth {
			n.Children = fromNodes(t, children, depth+1, opts)
		}
		out = append(out, n)
	}
	return out
}

func sumMetrics(nodes []*calltree.Node) int64 {
	var sum int64
	for _, n := range nodes {
		sum += n.Metric
	}
	return sum
}

// ResolveAll fills Path and Line of nodes and their descendants. Frames are
// resolved once even when they appear in several nodes.
func ResolveAll(ctx context.Context, r location.Resolver, nodes []*Node) error {
	return resolve(ctx, r, nodes, make(map[frame.Frame]location.Location))
}

func resolve(ctx context.Context, r location.Resolver, nodes []*Node, seen map[frame.Frame]location.Location) error {
	for _, n := range nodes {
		l, ok := seen[n.Frame]
		if !ok {
			var err error
			l, _, err = r.Resolve(ctx, n.Frame)
			if err != nil {
				return err
			}
			seen[n.Frame] = l
		}
		n.Path = l.File
		n.Line = l.Line
		if err := resolve(ctx, r, n.Children, seen); err != nil {
			return err
		}
	}
	return nil
}

// Collapse removes library frames whose only child accounts for all of
// their time, keeping the frame closest to the application code.
func (n Node) Collapse() []*Node {
	// always collapse the children first, since pruning may reduce
	// the number of children
	children := make([]*Node, 0, len(n.Children))
	for _, child := range n.Children {
		children = append(children, child.Collapse()...)
	}
	n.Children = children

	if len(n.Children) == 1 {
		child := n.Children[0]
		if n.InclusiveNS == child.InclusiveNS {
			if n.IsApplication {
				if !child.IsApplication {
					// keep the application frame, skip the library one
					n.SelfNS += child.SelfNS
					n.Children = child.Children
				}
			} else {
				n = *child
			}
		}
	}

	return []*Node{&n}
}

// CollapseAll is Collapse over a forest.
func CollapseAll(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Collapse()...)
	}
	return out
}
