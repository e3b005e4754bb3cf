package nodetree

import (
	"context"
	"testing"

	"github.com/JetBrains/intellij-plugins-sub025/internal/calltree"
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/location"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/testutil"
)

func node(f frame.Frame, isApplication bool, inclusive, self uint64, percent int64, children ...*Node) *Node {
	n := NodeFromFrame(f, isApplication)
	n.InclusiveNS = inclusive
	n.SelfNS = self
	n.Percent = percent
	n.Children = children
	return n
}

func buildTree(t *testing.T) *calltree.CallTree {
	t.Helper()
	ct, err := calltree.Build(context.Background(), []sample.Performance{
		{Frames: []frame.Frame{"app::Main/main", "app::Server/serve", "java.net::Socket/read"}, Duration: 10},
		{Frames: []frame.Frame{"app::Main/main", "app::Server/serve", "app::Decode/run"}, Duration: 25},
		{Frames: []frame.Frame{"app::Main/main"}, Duration: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ct
}

func TestFromGrouping(t *testing.T) {
	ct := buildTree(t)
	tests := []struct {
		name string
		opts Options
		want []*Node
	}{
		{
			name: "whole tree",
			opts: Options{Total: ct.Total()},
			want: []*Node{
				node("app::Main/main", true, 40, 5, 100,
					node("app::Server/serve", true, 35, 0, 87,
						node("app::Decode/run", true, 25, 25, 62),
						node("java.net::Socket/read", false, 10, 10, 25),
					),
				),
			},
		},
		{
			name: "max depth",
			opts: Options{Total: ct.Total(), MaxDepth: 1},
			want: []*Node{
				node("app::Main/main", true, 40, 5, 100),
			},
		},
		{
			name: "zero total",
			opts: Options{MaxDepth: 1},
			want: []*Node{
				node("app::Main/main", true, 40, 5, 0),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromGrouping(ct.TopDown(), tt.opts)
			if diff := testutil.Diff(got, tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestFromChildren(t *testing.T) {
	ct := buildTree(t)
	got := FromChildren(ct.TopDown(), []frame.Frame{"app::Main/main", "app::Server/serve"}, Options{Total: ct.Total()})
	want := []*Node{
		node("app::Decode/run", true, 25, 25, 62),
		node("java.net::Socket/read", false, 10, 10, 25),
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	if got := FromChildren(ct.TopDown(), []frame.Frame{"app::Server/serve"}, Options{}); len(got) != 0 {
		t.Fatalf("expected no nodes below a path that isn't rooted, got %+v", got)
	}
}

func TestFromGroupingCounts(t *testing.T) {
	ct := buildTree(t)
	targets := []frame.Frame{"app::Server/serve"}
	got := FromGrouping(ct.Callers(targets), Options{
		Total:  ct.Total(),
		Counts: func(members []sample.Performance) (int, int) { return ct.Counts(members, targets) },
	})
	if len(got) != 1 {
		t.Fatalf("expected a single root, got %d", len(got))
	}
	root := got[0]
	if root.Frame != "app::Server/serve" || root.InclusiveNS != 35 || root.Calls != 2 || root.SelfCalls != 0 {
		t.Fatalf("unexpected root: %+v", root)
	}
	if len(root.Children) != 1 || root.Children[0].Frame != "app::Main/main" {
		t.Fatalf("unexpected callers: %+v", root.Children)
	}
}

func TestCollapse(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want []*Node
	}{
		{
			name: "library frame with a single child spanning it",
			node: node("java.lang::Thread/run", false, 20, 0, 0,
				node("app::Worker/loop", true, 20, 20, 0),
			),
			want: []*Node{
				node("app::Worker/loop", true, 20, 20, 0),
			},
		},
		{
			name: "application frame keeps its place over a library child",
			node: node("app::Main/main", true, 10, 0, 0,
				node("java.util::List/sort", false, 10, 4, 0,
					node("app::Cmp/compare", true, 6, 6, 0),
				),
			),
			want: []*Node{
				node("app::Main/main", true, 10, 4, 0,
					node("app::Cmp/compare", true, 6, 6, 0),
				),
			},
		},
		{
			name: "partial child is kept",
			node: node("java.lang::Thread/run", false, 20, 5, 0,
				node("app::Worker/loop", true, 15, 15, 0),
			),
			want: []*Node{
				node("java.lang::Thread/run", false, 20, 5, 0,
					node("app::Worker/loop", true, 15, 15, 0),
				),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CollapseAll([]*Node{tt.node})
			if diff := testutil.Diff(got, tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

type countingResolver struct {
	calls int
}

func (r *countingResolver) Resolve(ctx context.Context, f frame.Frame) (location.Location, bool, error) {
	r.calls++
	return location.FrameParser{}.Resolve(ctx, f)
}

func TestResolveAll(t *testing.T) {
	nodes := []*Node{
		node("app::Main/main[Main.kt:3]", true, 10, 0, 0,
			node("app::Loop/run[Loop.kt:9]", true, 5, 5, 0),
			node("app::Main/main[Main.kt:3]", true, 5, 5, 0),
		),
	}
	r := &countingResolver{}
	if err := ResolveAll(context.Background(), r, nodes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.calls != 2 {
		t.Fatalf("expected 2 resolutions, got %d", r.calls)
	}
	if nodes[0].Path != "Main.kt" || nodes[0].Line != 3 || nodes[0].Children[0].Path != "Loop.kt" || nodes[0].Children[1].Line != 3 {
		t.Fatalf("unexpected locations: %+v", nodes[0])
	}
}
